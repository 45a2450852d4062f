package matching

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotEligible means the requester has no completed questionnaire.
	// GetMatches does not return it; it is exposed for transports that want
	// to explain an empty result.
	ErrNotEligible = errors.New("matching: requester has not completed intake")

	// ErrRepositoryUnavailable wraps any failure to read profiles or
	// responses. It is retryable.
	ErrRepositoryUnavailable = errors.New("matching: profile repository unavailable")

	// ErrMatchNotFound is returned by PassMatch/MarkViewed for unknown ids.
	ErrMatchNotFound = errors.New("matching: match not found")

	// ErrPlaceholderMatch is returned when a caller tries to mutate a
	// synthetic cold-start match.
	ErrPlaceholderMatch = errors.New("matching: placeholder matches cannot be modified")

	// ErrMalformedResponses is returned by the scorer for response sets that
	// fail validation.
	ErrMalformedResponses = errors.New("matching: malformed response set")
)

// RateLimitedError is returned when the recomputation quota is exhausted.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("matching: recompute rate limit exceeded, retry in %ds", e.RetrySeconds())
}

// RetrySeconds rounds RetryAfter up to whole seconds, never below 1.
func (e *RateLimitedError) RetrySeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// IsRetryable reports whether err is a transient failure a caller may retry.
func IsRetryable(err error) bool {
	var rl *RateLimitedError
	return errors.Is(err, ErrRepositoryUnavailable) || errors.As(err, &rl)
}
