package types

// WorkItem is one prompt to be fanned out across the configured providers.
type WorkItem struct {
	ID     int    `json:"prompt_id"`
	Prompt string `json:"prompt"`
}

// ProviderResult holds the outcome of querying a single provider for one
// work item. Exactly one of Response and Error is set.
type ProviderResult struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// OK reports whether the provider returned a usable, non-empty response.
func (r ProviderResult) OK() bool {
	return r.Error == "" && r.Response != ""
}

// ResultRecord is the per-prompt output: one ProviderResult per configured
// provider, in the fixed configured provider order. Records are produced
// exactly once per work item.
type ResultRecord struct {
	ID      int              `json:"prompt_id"`
	Prompt  string           `json:"prompt"`
	Results []ProviderResult `json:"results"`
}

// Passed reports whether at least one provider answered this prompt with a
// non-empty response and no error.
func (r ResultRecord) Passed() bool {
	for _, pr := range r.Results {
		if pr.OK() {
			return true
		}
	}
	return false
}

// Summary is the aggregate outcome of a batch run.
type Summary struct {
	TotalPrompts int `json:"total_prompts"`
	Passes       int `json:"passes"`
	Fails        int `json:"fails"`
}
