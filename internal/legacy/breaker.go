package legacy

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig controls the per-backend circuit breakers.
type BreakerConfig struct {
	MaxRequests           uint32        // requests allowed while half-open
	Interval              time.Duration // closed-state count reset period (0 = never)
	Timeout               time.Duration // open -> half-open delay
	FailureThreshold      uint32        // consecutive failures to trip
	FailureRatioThreshold float64
	MinRequestsToTrip     uint32
}

// DefaultBreakerConfig returns the breaker settings used by the server.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:           1,
		Interval:              60 * time.Second,
		Timeout:               30 * time.Second,
		FailureThreshold:      5,
		FailureRatioThreshold: 0.6,
		MinRequestsToTrip:     10,
	}
}

// StateFunc observes breaker state changes.
type StateFunc func(addr string, from, to gobreaker.State)

// breakers keeps one circuit breaker per backend address.
type breakers struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	onChange StateFunc
	byAddr   map[string]*gobreaker.CircuitBreaker
}

func newBreakers(cfg BreakerConfig, onChange StateFunc) *breakers {
	return &breakers{cfg: cfg, onChange: onChange, byAddr: make(map[string]*gobreaker.CircuitBreaker)}
}

func (b *breakers) get(addr string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.byAddr[addr]; ok {
		return cb
	}

	cfg := b.cfg
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        addr,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.FailureThreshold {
				return true
			}
			if counts.Requests >= cfg.MinRequestsToTrip {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= cfg.FailureRatioThreshold
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("legacy backend circuit changed state", "addr", name, "from", from.String(), "to", to.String())
			if b.onChange != nil {
				b.onChange(name, from, to)
			}
		},
	})
	b.byAddr[addr] = cb
	return cb
}

// states returns the current state name of every known breaker.
func (b *breakers) states() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]string, len(b.byAddr))
	for addr, cb := range b.byAddr {
		out[addr] = cb.State().String()
	}
	return out
}
