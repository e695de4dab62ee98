package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper runs the expiry sweep on a fixed interval, independent of request
// handling. It shares the soft-delete primitive with user-initiated deletes,
// so a concurrent delete of the same message is a harmless no-op.
type Sweeper struct {
	svc      *MessageService
	interval time.Duration
	batch    int64
	log      *zap.Logger
}

func NewSweeper(svc *MessageService, interval time.Duration, batch int64, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 500
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{svc: svc, interval: interval, batch: batch, log: log}
}

// Run blocks until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.svc.SweepExpired(ctx, w.batch); err != nil {
				w.log.Error("expiry sweep cycle failed", zap.Error(err))
			}
		}
	}
}
