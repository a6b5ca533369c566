package oracle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
)

// #region policy
// RetryPolicy bounds how often a transient oracle failure is retried.
// MaxAttempts counts the first call, so 3 means two retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration // per attempt, 0 = none

	// Sleep replaces the backoff wait in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Backoff is the wait before retry n (1-based): BaseDelay * 2^(n-1), capped at MaxDelay.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return nil
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

// #endregion policy

// #region retry
// Retry runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. The last error is returned wrapped.
func Retry[T any](ctx context.Context, p RetryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var zero T
	var lastErr error
	for n := 1; n <= attempts; n++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
		}
		v, err := fn(callCtx)
		cancel()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !binder.Retryable(err) {
			return zero, fmt.Errorf("%s: %w", op, err)
		}
		if n == attempts {
			break
		}
		wait := p.Backoff(n)
		log.Printf("[ORACLE] %s attempt %d/%d failed: %v; retrying in %s", op, n, attempts, err, wait)
		if err := p.sleep(ctx, wait); err != nil {
			return zero, fmt.Errorf("%s: backoff interrupted: %w", op, lastErr)
		}
	}
	return zero, fmt.Errorf("%s: gave up after %d attempts: %w", op, attempts, lastErr)
}

// #endregion retry

// #region wrappers
// RetryingPredictor retries transient predictor failures.
type RetryingPredictor struct {
	Next   Predictor
	Policy RetryPolicy
}

func (r RetryingPredictor) Predict(ctx context.Context, req PredictRequest) (Prediction, error) {
	return Retry(ctx, r.Policy, "predict "+req.CandidateID, func(ctx context.Context) (Prediction, error) {
		return r.Next.Predict(ctx, req)
	})
}

// RetryingScorer retries transient scorer failures.
type RetryingScorer struct {
	Next   Scorer
	Policy RetryPolicy
}

func (r RetryingScorer) Score(ctx context.Context, req ScoreRequest) (map[string]float64, error) {
	return Retry(ctx, r.Policy, "score "+req.CandidateID, func(ctx context.Context) (map[string]float64, error) {
		return r.Next.Score(ctx, req)
	})
}

// #endregion wrappers
