package command

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/heritage-hub/heritage-engine/internal/infrastructure/observability"
	"github.com/heritage-hub/heritage-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD BATCH COMMAND
// Imports of activity for many users. Users are processed concurrently,
// each user's commands in submission order; one failing item never stops
// the rest of the batch.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultBatchConcurrency bounds the number of users processed at once.
const DefaultBatchConcurrency = 8

// RecordBatchCommand carries activity commands for any number of users.
type RecordBatchCommand struct {
	Items []RecordActivityCommand
}

// BatchItemResult is the outcome of one item; exactly one of Result and Err
// is set.
type BatchItemResult struct {
	Index  int
	Result *RecordActivityResult
	Err    error
}

// RecordBatchResult lists item outcomes in input order.
type RecordBatchResult struct {
	Items     []BatchItemResult
	Succeeded int
	Failed    int
}

// Errors returns the failed items.
func (r *RecordBatchResult) Errors() []BatchItemResult {
	var failed []BatchItemResult
	for _, item := range r.Items {
		if item.Err != nil {
			failed = append(failed, item)
		}
	}
	return failed
}

// RecordBatchHandler fans a batch out over RecordActivityHandler.
type RecordBatchHandler struct {
	activity    *RecordActivityHandler
	concurrency int
	log         *logger.Logger
}

// NewRecordBatchHandler creates a new RecordBatchHandler. concurrency <= 0
// selects DefaultBatchConcurrency.
func NewRecordBatchHandler(activity *RecordActivityHandler, concurrency int, opts Options) *RecordBatchHandler {
	opts = opts.withDefaults()
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	return &RecordBatchHandler{
		activity:    activity,
		concurrency: concurrency,
		log:         opts.Logger.With(logger.Component("record_batch")),
	}
}

// Handle records every item. The returned error is only the context's:
// items left unprocessed after cancellation carry it as their Err.
func (h *RecordBatchHandler) Handle(ctx context.Context, cmd RecordBatchCommand) (_ *RecordBatchResult, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "command.record_batch", attribute.Int("batch_size", len(cmd.Items)))
	defer func() { observability.EndSpan(span, err) }()

	result := &RecordBatchResult{Items: make([]BatchItemResult, len(cmd.Items))}
	for i := range result.Items {
		result.Items[i].Index = i
	}

	// Group by user, keeping the first-seen user order.
	var users []string
	byUser := make(map[string][]int)
	for i, item := range cmd.Items {
		if _, ok := byUser[item.UserID]; !ok {
			users = append(users, item.UserID)
		}
		byUser[item.UserID] = append(byUser[item.UserID], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)

	for _, user := range users {
		indexes := byUser[user]
		g.Go(func() error {
			for _, i := range indexes {
				if err := gctx.Err(); err != nil {
					result.Items[i].Err = err
					continue
				}
				res, err := h.activity.Handle(gctx, cmd.Items[i])
				result.Items[i].Result = res
				result.Items[i].Err = err
			}
			// Item errors are results, not group failures.
			return nil
		})
	}
	_ = g.Wait()

	for _, item := range result.Items {
		if item.Err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}

	h.log.Info("batch recorded",
		logger.Int("items", len(cmd.Items)),
		logger.Int("users", len(users)),
		logger.Int("failed", result.Failed),
		logger.Latency(time.Since(start)),
	)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}
