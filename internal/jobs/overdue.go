// Package jobs defines the background tasks run by the worker.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TypeOverdueSweep flags unpaid invoices past their due date.
const TypeOverdueSweep = "invoice:overdue_sweep"

// OverdueMarker is the invoice service operation the sweep drives.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context) (int64, error)
}

// NewOverdueSweepTask builds the periodic sweep task. Unique keeps a slow sweep
// from stacking up behind itself.
func NewOverdueSweepTask(interval time.Duration) *asynq.Task {
	opts := []asynq.Option{asynq.MaxRetry(3), asynq.Timeout(5 * time.Minute)}
	if interval > 0 {
		opts = append(opts, asynq.Unique(interval))
	}
	return asynq.NewTask(TypeOverdueSweep, nil, opts...)
}

// OverdueSweepHandler runs the sweep.
type OverdueSweepHandler struct {
	Invoices OverdueMarker
	Logger   zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h OverdueSweepHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	started := time.Now()
	n, err := h.Invoices.MarkOverdue(ctx)
	if err != nil {
		h.Logger.Error().Err(err).Str("task", task.Type()).Msg("overdue_sweep_failed")
		return fmt.Errorf("mark overdue: %w", err)
	}
	h.Logger.Info().
		Str("task", task.Type()).
		Int64("marked", n).
		Dur("took", time.Since(started)).
		Msg("overdue_sweep_done")
	return nil
}

// NewMux registers every task handler.
func NewMux(invoices OverdueMarker, logger zerolog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeOverdueSweep, OverdueSweepHandler{Invoices: invoices, Logger: logger})
	return mux
}
