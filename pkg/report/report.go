// Package report turns dispatch results into run summaries and export files.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/osate/dispatch/pkg/types"
)

// Summarize counts per-record outcomes. A record passes when at least one
// provider result completed without error and carries a non-empty response.
func Summarize(records []types.ResultRecord) types.Summary {
	s := types.Summary{TotalPrompts: len(records)}
	for _, r := range records {
		if r.Passed() {
			s.Passes++
		} else {
			s.Fails++
		}
	}
	return s
}

// Report bundles the records of a run with its summary for export.
type Report struct {
	RunID   string               `json:"run_id,omitempty"`
	Summary types.Summary        `json:"summary"`
	Records []types.ResultRecord `json:"records"`
}

// New builds a report from a completed run.
func New(runID string, records []types.ResultRecord) *Report {
	return &Report{
		RunID:   runID,
		Summary: Summarize(records),
		Records: records,
	}
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteCSV writes one row per (prompt, provider) result pair.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{"prompt_id", "prompt", "provider", "model", "status", "response", "error"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, rec := range r.Records {
		for _, res := range rec.Results {
			status := "fail"
			if res.OK() {
				status = "pass"
			}
			row := []string{
				strconv.Itoa(rec.ID),
				rec.Prompt,
				res.Provider,
				res.Model,
				status,
				res.Response,
				res.Error,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
