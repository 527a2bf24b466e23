package iaas

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const maxAttempts = 3

// retryableStatus reports whether status is one of the 5xx codes the
// retry policy covers.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// attemptResult is returned by the function under retry: a response
// status (0 if the error was a network error, not an HTTP response),
// and a Retry-After hint in seconds (0 if absent).
type attemptResult struct {
	status            int
	retryAfterSeconds int
	networkErr        error
}

// withRetry applies exponential backoff: 5xx/network errors use base
// 1s/factor 2; 429 honors Retry-After if present, else base 2s/factor 2.
// Up to maxAttempts attempts, sleeping only between
// attempts, never after the last. Grounded in shape on
// original_source's retry_with_backoff, generalized to the two-class
// schedule the Go spec actually requires.
func withRetry(ctx context.Context, operation string, fn func(ctx context.Context, attempt int) (attemptResult, error)) error {
	logger := log.With().Str("component", "iaas_adapter").Str("operation", operation).Logger()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		var rle *RateLimitedError
		isRateLimited := errors.As(err, &rle)

		if !isRateLimited && !(result.networkErr != nil || retryableStatus(result.status)) {
			// Fatal: not retryable at all.
			return err
		}

		if attempt == maxAttempts {
			break
		}

		delay := backoffDelay(attempt, isRateLimited, result.retryAfterSeconds)
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("retrying iaas call")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	logger.Error().Err(lastErr).Int("attempts", maxAttempts).Msg("retry attempts exhausted")

	var rle *RateLimitedError
	if errors.As(lastErr, &rle) {
		return lastErr
	}
	return &TransientError{Cause: lastErr}
}

func backoffDelay(attempt int, rateLimited bool, retryAfterSeconds int) time.Duration {
	if rateLimited && retryAfterSeconds > 0 {
		return time.Duration(retryAfterSeconds) * time.Second
	}

	base := time.Second
	if rateLimited {
		base = 2 * time.Second
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}
