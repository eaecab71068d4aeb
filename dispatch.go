// Package dispatch submits text prompts to rate-limited text-generation
// APIs. It rotates through pools of API keys, retries transient failures
// with exponential backoff, fans prompt batches out with bounded
// concurrency, and aggregates pass/fail results.
//
// Basic usage:
//
//	prov, err := providers.Create(provider.Config{Type: provider.TypeOpenRouter})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := dispatch.NewClient(prov, "mistralai/mistral-7b-instruct",
//	    credential.FromEnv("OPENROUTER"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	runner, err := dispatch.NewRunner([]*dispatch.Client{client},
//	    dispatch.WithConcurrency(4),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rep, err := runner.Run(ctx, prompts)
package dispatch

import (
	"errors"

	"github.com/osate/dispatch/pkg/types"
)

// Version is the current version of the dispatch library.
const Version = "1.0.0"

var (
	errNoClients = errors.New("dispatch: at least one client is required")
	errNoPrompts = errors.New("dispatch: no prompts to process")
)

// Re-export core types for convenience, so callers can use
// dispatch.ChatRequest instead of types.ChatRequest.
type (
	// ChatRequest is a unified chat completion request.
	ChatRequest = types.ChatRequest

	// ChatResponse is a unified chat completion response.
	ChatResponse = types.ChatResponse

	// ChatMessage is a single message in a conversation.
	ChatMessage = types.ChatMessage

	// WorkItem is one prompt in a batch.
	WorkItem = types.WorkItem

	// ProviderResult is one provider's outcome for one prompt.
	ProviderResult = types.ProviderResult

	// ResultRecord collects per-provider outcomes for one prompt.
	ResultRecord = types.ResultRecord

	// Summary is the pass/fail tally of a batch run.
	Summary = types.Summary
)
