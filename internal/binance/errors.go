package binance

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUpstreamUnavailable marks a failed or malformed universe/volume fetch
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrFetchFailed marks a failed candle or price fetch for one symbol
	ErrFetchFailed = errors.New("fetch failed")
	// ErrMalformedPayload marks a response body that does not have the expected shape
	ErrMalformedPayload = errors.New("malformed payload")
)

// FetchError is returned by per-symbol calls
type FetchError struct {
	Symbol string
	Op     string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrFetchFailed) match any FetchError
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

// APIError is a non-success HTTP response
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// RateLimitError is a 429 or 418 response
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
	BanUntil   time.Time
	Body       string
}

func (e *RateLimitError) Error() string {
	if !e.BanUntil.IsZero() {
		return fmt.Sprintf("rate limited (status %d) until %s", e.StatusCode, e.BanUntil.Format(time.RFC3339))
	}
	return fmt.Sprintf("rate limited (status %d), retry after %v", e.StatusCode, e.RetryAfter)
}

// Until returns the instant requests may resume
func (e *RateLimitError) Until(now time.Time) time.Time {
	if !e.BanUntil.IsZero() {
		return e.BanUntil
	}
	return now.Add(e.RetryAfter)
}

func upstreamError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, op, err)
}
