package synchronizer

import (
	"context"
	"time"
)

// pacer sleeps a fixed delay between remote calls of a loop.
type pacer struct {
	delay time.Duration
}

func (p pacer) wait(ctx context.Context) error {
	if p.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
