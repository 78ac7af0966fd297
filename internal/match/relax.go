package match

import (
	"context"
	"fmt"
)

// Retry re-enqueues the user's last request, optionally broadened, keeping
// their seniority, and tries to match them again. It returns the criteria
// that were applied.
func (e *Engine) Retry(ctx context.Context, userID string, mode RetryMode) (Criteria, error) {
	if mode == "" {
		mode = RetrySame
	}
	if mode != RetrySame && mode != RetryBroaden {
		return Criteria{}, fmt.Errorf("%w: %q", ErrInvalidRetryMode, mode)
	}

	rec, found, err := e.loadRequest(ctx, userID)
	if err != nil {
		return Criteria{}, err
	}
	if !found {
		return Criteria{}, fmt.Errorf("%w for user %s", ErrNoRequest, userID)
	}
	if rec.Status == StatusPendingAccept {
		return Criteria{}, fmt.Errorf("%w: pair %s", ErrHandshakePending, rec.PairID)
	}

	lists, err := e.catalog.Lists(ctx)
	if err != nil {
		return Criteria{}, fmt.Errorf("load catalog: %w", err)
	}

	applied := rec.Criteria
	if mode == RetryBroaden {
		applied = Broaden(applied, lists)
	}
	applied, buckets, err := Normalize(applied, lists)
	if err != nil {
		return Criteria{}, err
	}

	if err := e.cleanup(ctx, userID); err != nil {
		return Criteria{}, err
	}
	if err := e.enqueue(ctx, userID, applied, buckets, &rec); err != nil {
		return Criteria{}, err
	}
	e.log.Info("request retried", "user_id", userID, "mode", string(mode), "difficulty", applied.Difficulty, "topics", applied.Topics)

	if _, err := e.tryMatch(ctx, userID, buckets); err != nil {
		return Criteria{}, err
	}
	return applied, nil
}
