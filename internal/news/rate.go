package news

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// rateGate is the per-source rate-limit bookkeeping: a rolling 60s request
// window with a hard cap, plus a minimum spacing between consecutive calls.
// State is local to one source instance and never shared.
type rateGate struct {
	mu          sync.Mutex
	source      string
	windowCap   int           // 0 means no window cap
	minInterval time.Duration // spacing between consecutive requests
	maxInterval time.Duration // ceiling for adaptive backoff
	lastRequest time.Time
	requests    []time.Time
	now         func() time.Time
	sleep       func(time.Duration)
}

const rateWindow = 60 * time.Second

func newRateGate(source string, windowCap int, minInterval, maxInterval time.Duration) *rateGate {
	return &rateGate{
		source:      source,
		windowCap:   windowCap,
		minInterval: minInterval,
		maxInterval: maxInterval,
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// take reserves one request slot. It returns false when the rolling window is
// full (the source is treated as a miss for this call, never queued). When
// spacing is required it sleeps the calling goroutine first; news fetches are
// on a slow path where a synchronous wait is acceptable.
func (g *rateGate) take() bool {
	g.mu.Lock()

	now := g.now()
	kept := g.requests[:0]
	for _, t := range g.requests {
		if now.Sub(t) < rateWindow {
			kept = append(kept, t)
		}
	}
	g.requests = kept

	if g.windowCap > 0 && len(g.requests) >= g.windowCap {
		g.mu.Unlock()
		log.Warn().Str("source", g.source).Msg("Rate limit window full, skipping source")
		return false
	}

	wait := time.Duration(0)
	if !g.lastRequest.IsZero() {
		if elapsed := now.Sub(g.lastRequest); elapsed < g.minInterval {
			wait = g.minInterval - elapsed
		}
	}
	g.lastRequest = now
	g.requests = append(g.requests, now)
	g.mu.Unlock()

	if wait > 0 {
		log.Info().Str("source", g.source).Dur("wait", wait).Msg("Spacing request for rate limiting")
		g.sleep(wait)
	}
	return true
}

// backoff widens the minimum spacing after a provider-side rate-limit
// response, multiplicatively with a cap.
func (g *rateGate) backoff() {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := time.Duration(float64(g.minInterval) * 1.5)
	if g.maxInterval > 0 && next > g.maxInterval {
		next = g.maxInterval
	}
	if next > g.minInterval {
		log.Warn().Str("source", g.source).Dur("min_interval", next).Msg("Provider rate limited, increasing spacing")
		g.minInterval = next
	}
}
