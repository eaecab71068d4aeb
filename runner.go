package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/osate/dispatch/pkg/report"
	"github.com/osate/dispatch/pkg/types"
)

// Runner drives a batch of prompts through one or more provider clients and
// aggregates the outcomes. Prompts run concurrently through the queue; for a
// given prompt the clients are queried sequentially in the order they were
// registered, so a record's results always line up with the client list.
type Runner struct {
	clients []*Client
	queue   *Queue
	logger  *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConcurrency bounds how many prompts are in flight at once.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		r.queue = NewQueue(n, WithQueueLogger(r.logger))
	}
}

// WithRunnerLogger sets the structured logger for the runner and its queue.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a runner over the given clients. At least one client is
// required.
func NewRunner(clients []*Client, opts ...RunnerOption) (*Runner, error) {
	if len(clients) == 0 {
		return nil, errNoClients
	}
	r := &Runner{
		clients: clients,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.queue == nil {
		r.queue = NewQueue(DefaultConcurrency, WithQueueLogger(r.logger))
	}
	return r, nil
}

// Run processes every prompt and returns the aggregated report. Individual
// prompt failures are captured in their records; Run itself only fails on
// an empty prompt list.
func (r *Runner) Run(ctx context.Context, prompts []string) (*report.Report, error) {
	if len(prompts) == 0 {
		return nil, errNoPrompts
	}

	runID := uuid.NewString()
	items := make([]types.WorkItem, len(prompts))
	for i, p := range prompts {
		items[i] = types.WorkItem{ID: i + 1, Prompt: p}
	}

	r.logger.Info("run started",
		"run_id", runID,
		"prompts", len(items),
		"targets", len(r.clients),
		"concurrency", r.queue.Concurrency(),
	)
	start := time.Now()

	records := r.queue.ProcessAll(ctx, items, r.handle)

	rep := report.New(runID, records)
	r.logger.Info("run finished",
		"run_id", runID,
		"total", rep.Summary.TotalPrompts,
		"passes", rep.Summary.Passes,
		"fails", rep.Summary.Fails,
		"elapsed", time.Since(start),
	)
	return rep, nil
}

// handle queries every client for one prompt. A failing client contributes
// an error result; the remaining clients still run.
func (r *Runner) handle(ctx context.Context, item types.WorkItem) types.ResultRecord {
	rec := types.ResultRecord{
		ID:      item.ID,
		Prompt:  item.Prompt,
		Results: make([]types.ProviderResult, 0, len(r.clients)),
	}

	for _, c := range r.clients {
		res := types.ProviderResult{
			Provider: c.Provider(),
			Model:    c.Model(),
		}
		resp, err := c.Query(ctx, item.Prompt)
		if err != nil {
			res.Error = err.Error()
			r.logger.Warn("prompt failed",
				"prompt_id", item.ID,
				"provider", c.Provider(),
				"model", c.Model(),
				"error", err,
			)
		} else {
			res.Response = resp
		}
		rec.Results = append(rec.Results, res)
	}

	return rec
}
