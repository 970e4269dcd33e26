// Package retry wraps calls to rate-limited remote services with a
// classification-aware backoff protocol.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/ruleminer/internal/metrics"
	"github.com/dshills/ruleminer/pkg/types"
)

// Defaults
const (
	DefaultMaxAttempts   = 5
	ExtractionAttempts   = 3
	DefaultBaseDelay     = time.Second
	DefaultMaxDelay      = 60 * time.Second
	DefaultRateLimitWait = 30 * time.Second
	DefaultSafetyBuffer  = time.Second

	rateLimitJitter = 5 * time.Second
)

// Retry reasons, used as log attributes and metric labels
const (
	ReasonSuggested = "suggested_wait"
	ReasonRateLimit = "rate_limit"
	ReasonBackoff   = "backoff"
)

// ErrExhausted is returned (wrapping the last error) when every attempt failed
var ErrExhausted = errors.New("retry attempts exhausted")

// RetryAfterer is implemented by errors that carry a server-suggested wait
type RetryAfterer interface {
	RetryAfter() time.Duration
}

// Policy configures the retry protocol
type Policy struct {
	MaxAttempts   int           // Total attempts including the first call
	BaseDelay     time.Duration // First exponential delay
	MaxDelay      time.Duration // Cap for exponential delay
	RateLimitWait time.Duration // Wait for rate limits without a suggested duration
	SafetyBuffer  time.Duration // Added to server-suggested waits

	// Name identifies the wrapped operation in logs
	Name   string
	Logger *slog.Logger

	// Sleep and Jitter are replaced in tests
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(max time.Duration) time.Duration
}

// DefaultPolicy returns the general-purpose policy
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   DefaultMaxAttempts,
		BaseDelay:     DefaultBaseDelay,
		MaxDelay:      DefaultMaxDelay,
		RateLimitWait: DefaultRateLimitWait,
		SafetyBuffer:  DefaultSafetyBuffer,
	}
}

// ExtractionPolicy returns the policy used around per-unit extraction calls
func ExtractionPolicy() Policy {
	p := DefaultPolicy()
	p.MaxAttempts = ExtractionAttempts
	p.Name = "extract"
	return p
}

// Do calls fn until it succeeds, the attempts run out, or ctx is cancelled.
// Between attempts it sleeps according to Classify.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay, reason := p.Delay(err, attempt)
		p.Logger.Warn("retry.attempt.failed",
			"op", p.Name,
			"attempt", attempt+1,
			"max_attempts", p.MaxAttempts,
			"reason", reason,
			"delay", delay,
			"error", err,
		)
		metrics.RecordRetry(reason)

		if err := p.Sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, lastErr)
}

// Delay computes the wait before the next attempt. attempt is zero-based.
func (p Policy) Delay(err error, attempt int) (time.Duration, string) {
	p = p.withDefaults()

	if wait, ok := SuggestedWait(err); ok {
		return wait + p.SafetyBuffer, ReasonSuggested
	}
	if IsRateLimit(err) {
		return p.RateLimitWait + p.Jitter(rateLimitJitter), ReasonRateLimit
	}

	delay := p.BaseDelay
	for i := 0; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay + p.Jitter(delay/10), ReasonBackoff
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.RateLimitWait <= 0 {
		p.RateLimitWait = d.RateLimitWait
	}
	if p.SafetyBuffer < 0 {
		p.SafetyBuffer = 0
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	if p.Jitter == nil {
		p.Jitter = randomJitter
	}
	return p
}

var suggestedWaitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry in\s+(\d+(?:\.\d+)?)\s*s`),
	regexp.MustCompile(`(?i)retry after\s+(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)retryDelay"?\s*:\s*"(\d+(?:\.\d+)?)s"`),
}

// SuggestedWait extracts a server-suggested wait from a typed error or from
// the error text.
func SuggestedWait(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var ra RetryAfterer
	if errors.As(err, &ra) && ra.RetryAfter() > 0 {
		return ra.RetryAfter(), true
	}

	msg := err.Error()
	for _, re := range suggestedWaitPatterns {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		secs, perr := strconv.ParseFloat(m[1], 64)
		if perr != nil {
			continue
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	return 0, false
}

var rateLimitMarkers = []string{"429", "quota", "exhausted", "rate limit"}

// IsRateLimit reports whether err signals a rate limit or exhausted quota
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, types.ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
