package binance

import (
	"context"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateLimiter spends Binance request weight from a per-minute budget and
// blocks every request while an upstream ban is in force
type RateLimiter struct {
	mu sync.RWMutex

	limiter   *rate.Limiter
	maxWeight int

	// Ban state
	banUntil          time.Time
	consecutiveErrors int

	// Last reported X-MBX-USED-WEIGHT-1M
	usedWeight int

	logger zerolog.Logger
}

// Endpoint weights for the Binance Spot API
var endpointWeights = map[string]int{
	"/api/v3/exchangeInfo": 20,
	"/api/v3/ticker/24hr":  80, // without symbol
	"/api/v3/klines":       2,
	"/api/v3/ticker/price": 2,
}

// NewRateLimiter creates a limiter with a per-minute weight budget
func NewRateLimiter(maxWeightPerMinute int, logger zerolog.Logger) *RateLimiter {
	if maxWeightPerMinute <= 0 {
		maxWeightPerMinute = 6000
	}
	return &RateLimiter{
		limiter:   rate.NewLimiter(rate.Limit(float64(maxWeightPerMinute)/60.0), maxWeightPerMinute),
		maxWeight: maxWeightPerMinute,
		logger:    logger.With().Str("component", "RateLimiter").Logger(),
	}
}

// Wait blocks until the ban window has passed and the endpoint's weight is available
func (r *RateLimiter) Wait(ctx context.Context, endpoint string) error {
	r.mu.RLock()
	banUntil := r.banUntil
	r.mu.RUnlock()

	if wait := time.Until(banUntil); wait > 0 {
		r.logger.Warn().Dur("wait", wait).Msg("Upstream ban in force, waiting")
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return r.limiter.WaitN(ctx, getEndpointWeight(endpoint, r.maxWeight))
}

// RecordRequest records a successful request
func (r *RateLimiter) RecordRequest() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutiveErrors = 0
}

// RecordRateLimitError opens the ban window until the given instant.
// A zero instant falls back to exponential backoff on consecutive errors.
func (r *RateLimiter) RecordRateLimitError(until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutiveErrors++
	if until.IsZero() || !until.After(time.Now()) {
		backoff := time.Duration(1<<uint(r.consecutiveErrors)) * time.Second
		if backoff > 2*time.Minute {
			backoff = 2 * time.Minute
		}
		until = time.Now().Add(backoff)
	}
	if until.After(r.banUntil) {
		r.banUntil = until
	}

	r.logger.Warn().
		Time("ban_until", r.banUntil).
		Int("consecutive_errors", r.consecutiveErrors).
		Msg("Rate limited by upstream")
}

// BanUntil returns the end of the current ban window (zero when not banned)
func (r *RateLimiter) BanUntil() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if time.Now().After(r.banUntil) {
		return time.Time{}
	}
	return r.banUntil
}

// UpdateFromHeaders records the weight Binance reports as used
func (r *RateLimiter) UpdateFromHeaders(usedWeight1m int) {
	r.mu.Lock()
	r.usedWeight = usedWeight1m
	r.mu.Unlock()

	if usagePct := float64(usedWeight1m) / float64(r.maxWeight) * 100; usagePct > 60 {
		r.logger.Warn().Int("used_weight", usedWeight1m).Int("max_weight", r.maxWeight).Msg("Weight usage high")
	}
}

// UsedWeight returns the last reported used weight
func (r *RateLimiter) UsedWeight() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usedWeight
}

// getEndpointWeight returns the weight for an endpoint
func getEndpointWeight(endpoint string, maxWeight int) int {
	weight, ok := endpointWeights[endpoint]
	if !ok {
		weight = 1
	}
	if weight > maxWeight {
		weight = maxWeight
	}
	return weight
}

var banUntilPattern = regexp.MustCompile(`banned until (\d+)`)

// ParseBanUntilFromError extracts the ban timestamp from a Binance -1003 message
func ParseBanUntilFromError(errMsg string) time.Time {
	m := banUntilPattern.FindStringSubmatch(errMsg)
	if m == nil {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}
	}

	// Sanity check - should be a millisecond timestamp within the next day
	until := time.UnixMilli(ms)
	if until.After(time.Now()) && until.Before(time.Now().Add(24*time.Hour)) {
		return until
	}
	return time.Time{}
}

// parseRetryAfter reads a Retry-After header in seconds
func parseRetryAfter(value string) time.Duration {
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
