package matrix

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/shawkym/room-upgrader/pkg/log"
)

// pacer spaces homeserver calls. A nil pacer never waits.
type pacer struct {
	limiter *rate.Limiter
}

// newPacer returns nil when rps <= 0 so pacing is disabled.
func newPacer(rps float64) *pacer {
	if rps <= 0 || math.IsInf(rps, 1) {
		return nil
	}
	return &pacer{limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

// Wait blocks until the request identified by call may proceed or ctx is done.
func (p *pacer) Wait(ctx context.Context, call string) error {
	if p == nil {
		return nil
	}

	r := p.limiter.Reserve()
	if !r.OK() {
		return nil
	}
	wait := r.Delay()
	if wait <= 0 {
		return nil
	}

	log.WithFields(map[string]interface{}{
		"call":    call,
		"wait_ms": wait.Milliseconds(),
	}).Debug("matrix api wait")

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}
