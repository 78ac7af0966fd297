package match

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// tryMatch walks the user's buckets in normalizer order and pairs them with
// the first available partner. It returns the new pair id, or "" when the
// user stays queued.
//
// Within a bucket the partner is the head entry, or the first entry other
// than the user within the lookahead window when the user is at the head.
// Candidates are tried in list order. Stale entries are dropped and the scan
// moves on to the next candidate; losing a lock moves on to the next bucket.
func (e *Engine) tryMatch(ctx context.Context, userID string, buckets []Bucket) (string, error) {
	for _, b := range buckets {
		key := b.Key()

		window, err := e.store.ListRange(ctx, key, 0, int64(e.lookahead-1))
		if err != nil {
			return "", fmt.Errorf("peek %s: %w", key, err)
		}

		for _, other := range window {
			if other == userID {
				continue
			}
			pairID, outcome, err := e.pair(ctx, userID, other, b)
			if err != nil {
				return "", err
			}
			if pairID != "" {
				return pairID, nil
			}
			if outcome == outcomeCallerGone {
				return "", nil
			}
			if outcome != outcomeStale {
				break
			}
		}
	}
	return "", nil
}

type pairOutcome int

const (
	outcomePaired pairOutcome = iota
	outcomeContended
	outcomeStale
	outcomeCallerGone
)

// pair tries to turn user x and bucket entry y into a Pair. Losing a lock or
// finding either side no longer queued is not an error; the outcome tells the
// caller whether to try another entry or another bucket.
func (e *Engine) pair(ctx context.Context, x, y string, b Bucket) (string, pairOutcome, error) {
	a, bb := canonical(x, y)

	lockKey := matchLockKey(a, bb)
	got, err := e.store.TryAcquireLock(ctx, lockKey, e.lockTTL)
	if err != nil {
		return "", outcomeContended, fmt.Errorf("acquire %s: %w", lockKey, err)
	}
	if !got {
		e.log.Debug("pair lock taken elsewhere", "user_a", a, "user_b", bb)
		return "", outcomeContended, nil
	}

	formed := false
	defer func() {
		// a pair that never formed must not block these two from pairing later
		if !formed {
			_ = e.store.ReleaseLock(context.WithoutCancel(ctx), lockKey)
		}
	}()

	claimed, release, err := e.claim(ctx, a, bb)
	if err != nil {
		return "", outcomeContended, fmt.Errorf("claim %s/%s: %w", a, bb, err)
	}
	if !claimed {
		return "", outcomeContended, nil
	}
	defer release()

	rx, okX, err := e.loadRequest(ctx, x)
	if err != nil {
		return "", outcomeContended, err
	}
	if !okX || rx.Status != StatusQueued {
		// matched by another instance meanwhile, or cancelled
		return "", outcomeCallerGone, nil
	}
	ry, okY, err := e.loadRequest(ctx, y)
	if err != nil {
		return "", outcomeContended, err
	}
	if !okY || ry.Status != StatusQueued {
		return "", outcomeStale, e.dropStale(ctx, y, b.Key())
	}

	if err := e.cleanup(ctx, a); err != nil {
		return "", outcomeContended, err
	}
	if err := e.cleanup(ctx, bb); err != nil {
		return "", outcomeContended, err
	}

	now := e.now()
	p := Pair{
		ID:         uuid.NewString(),
		UserA:      a,
		UserB:      bb,
		ExpiresAt:  now.Add(e.acceptWindow),
		CreatedAt:  now,
		Difficulty: b.Difficulty,
		Topic:      b.Topic,
	}
	if err := e.store.HashSet(ctx, pairKey(p.ID), encodePair(p)); err != nil {
		return "", outcomeContended, fmt.Errorf("write pair: %w", err)
	}
	formed = true
	if err := e.store.SetAdd(ctx, activePairsKey, p.ID); err != nil {
		return "", outcomeContended, fmt.Errorf("index pair: %w", err)
	}

	pending := map[string]string{
		"status":    StatusPendingAccept.String(),
		"pairId":    p.ID,
		"expiresAt": encodeTime(p.ExpiresAt),
	}
	for _, u := range []string{a, bb} {
		if err := e.store.HashSet(ctx, requestKey(u), pending); err != nil {
			return "", outcomeContended, fmt.Errorf("mark %s pending: %w", u, err)
		}
	}

	e.log.Info("pair created", "pair_id", p.ID, "user_a", a, "user_b", bb, "bucket", b.Key(), "expires_at", p.ExpiresAt)
	return p.ID, outcomePaired, nil
}

// dropStale removes a bucket entry whose owner is not queued, unless the
// owner's reverse index still lists the bucket (an enqueue in flight).
func (e *Engine) dropStale(ctx context.Context, userID, key string) error {
	keys, err := e.store.SetMembers(ctx, userBucketsKey(userID))
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	e.log.Debug("stale bucket entry dropped", "user_id", userID, "bucket", key)
	return e.store.ListRemove(ctx, key, userID)
}
