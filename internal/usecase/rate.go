package usecase

import (
	"context"
	"fmt"
	"time"

	"sunkelo/internal/config"
	"sunkelo/internal/ports"
)

// RateDecision is the outcome of a quota check.
type RateDecision struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// RateGovernor enforces a fixed per-caller quota over a sliding-start window.
type RateGovernor struct {
	counter ports.RateCounter
	quota   int64
	window  time.Duration
	bypass  bool
	now     func() time.Time
}

// NewRateGovernor builds the governor. Outside production the quota is not enforced.
func NewRateGovernor(counter ports.RateCounter, cfg config.RateLimitConfig, production bool) *RateGovernor {
	quota := int64(cfg.DailyQuota)
	if quota <= 0 {
		quota = 5
	}
	window := cfg.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &RateGovernor{
		counter: counter,
		quota:   quota,
		window:  window,
		bypass:  cfg.Bypass || !production,
		now:     time.Now,
	}
}

// Check counts one query for the caller.
func (g *RateGovernor) Check(ctx context.Context, callerHash string) (RateDecision, error) {
	now := g.now()
	if g.bypass {
		return RateDecision{Allowed: true, Remaining: g.quota, ResetAt: now.Add(g.window)}, nil
	}
	if g.counter == nil {
		return RateDecision{}, fmt.Errorf("rate counter is not configured")
	}

	count, ttl, err := g.counter.Increment(ctx, callerHash, g.window)
	if err != nil {
		return RateDecision{}, fmt.Errorf("count query: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}

	return RateDecision{
		Allowed:   count <= g.quota,
		Remaining: max(0, g.quota-count),
		ResetAt:   now.Add(ttl),
	}, nil
}
