package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/osate/dispatch/internal/metrics"
	"github.com/osate/dispatch/internal/resilience"
	"github.com/osate/dispatch/pkg/types"
)

// Handler processes one work item into a result record. It must be safe for
// concurrent use.
type Handler func(ctx context.Context, item types.WorkItem) types.ResultRecord

// Queue fans work items out to a handler with bounded concurrency. One slow
// or failing item never takes down the batch; its record simply carries the
// error.
type Queue struct {
	sem    *resilience.Semaphore
	logger *slog.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueLogger sets the structured logger for the queue.
func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// NewQueue creates a queue that runs at most concurrency handlers at once.
// Values below 1 are clamped to 1.
func NewQueue(concurrency int, opts ...QueueOption) *Queue {
	q := &Queue{
		sem:    resilience.NewSemaphore(concurrency),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Concurrency returns the queue's worker bound.
func (q *Queue) Concurrency() int { return q.sem.Capacity() }

// ProcessAll runs the handler over every item and returns one record per
// item, in input order. A handler panic is converted into a failed record
// for that item. When ctx is canceled, items that have not started yet are
// recorded as canceled rather than dropped.
func (q *Queue) ProcessAll(ctx context.Context, items []types.WorkItem, handler Handler) []types.ResultRecord {
	records := make([]types.ResultRecord, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		if err := q.sem.Acquire(ctx); err != nil {
			records[i] = canceledRecord(item, err)
			metrics.PromptsProcessed.WithLabelValues(metrics.OutcomeFail).Inc()
			continue
		}

		wg.Add(1)
		go func(i int, item types.WorkItem) {
			defer wg.Done()
			defer q.sem.Release()
			records[i] = q.runOne(ctx, item, handler)

			outcome := metrics.OutcomeFail
			if records[i].Passed() {
				outcome = metrics.OutcomePass
			}
			metrics.PromptsProcessed.WithLabelValues(outcome).Inc()
		}(i, item)
	}
	wg.Wait()

	return records
}

// runOne isolates a single handler invocation, recovering panics into a
// failed record.
func (q *Queue) runOne(ctx context.Context, item types.WorkItem, handler Handler) (rec types.ResultRecord) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("handler panic",
				"prompt_id", item.ID,
				"panic", r,
			)
			rec = types.ResultRecord{
				ID:     item.ID,
				Prompt: item.Prompt,
				Results: []types.ProviderResult{
					{Error: fmt.Sprintf("panic: %v", r)},
				},
			}
		}
	}()
	return handler(ctx, item)
}

func canceledRecord(item types.WorkItem, err error) types.ResultRecord {
	return types.ResultRecord{
		ID:     item.ID,
		Prompt: item.Prompt,
		Results: []types.ProviderResult{
			{Error: fmt.Sprintf("canceled before start: %v", err)},
		},
	}
}
