package match

import (
	"context"
	"fmt"
)

// enqueue writes the request record and appends the user to the back of
// every bucket. seniorityTs is carried over from prior when it has one.
func (e *Engine) enqueue(ctx context.Context, userID string, c Criteria, buckets []Bucket, prior *UserRequest) error {
	now := e.now()
	seniority := now
	if prior != nil && !prior.SeniorityTs.IsZero() {
		seniority = prior.SeniorityTs
	}

	// record first: a concurrent matcher only pairs users it sees as QUEUED
	if err := e.store.HashSet(ctx, requestKey(userID), map[string]string{
		"status":       StatusQueued.String(),
		"difficulty":   c.Difficulty,
		"topics":       encodeTopics(c.Topics),
		"createdAt":    encodeTime(now),
		"seniorityTs":  encodeTime(seniority),
		"pairId":       "",
		"expiresAt":    "",
		"sessionId":    "",
		"sessionUrl":   "",
		"sessionToken": "",
	}); err != nil {
		return fmt.Errorf("write request %s: %w", userID, err)
	}

	keys := make([]string, len(buckets))
	for i, b := range buckets {
		keys[i] = b.Key()
	}
	// reverse index before the lists so cleanup always sees every membership
	if err := e.store.SetAdd(ctx, userBucketsKey(userID), keys...); err != nil {
		return fmt.Errorf("index buckets of %s: %w", userID, err)
	}
	for _, k := range keys {
		if err := e.store.ListAppend(ctx, k, userID); err != nil {
			return fmt.Errorf("append %s to %s: %w", userID, k, err)
		}
	}

	return e.store.SetAdd(ctx, activeUsersKey, userID)
}

// cleanup removes the user from every bucket in its reverse index and clears
// the index. Running it twice is the same as running it once.
func (e *Engine) cleanup(ctx context.Context, userID string) error {
	keys, err := e.store.SetMembers(ctx, userBucketsKey(userID))
	if err != nil {
		return fmt.Errorf("read buckets of %s: %w", userID, err)
	}
	for _, k := range keys {
		if err := e.store.ListRemove(ctx, k, userID); err != nil {
			return fmt.Errorf("remove %s from %s: %w", userID, k, err)
		}
	}
	return e.store.Delete(ctx, userBucketsKey(userID))
}

// requeue puts the user back into the queue with their stored criteria and
// original seniority, then tries to match them.
func (e *Engine) requeue(ctx context.Context, rec UserRequest) error {
	lists, err := e.catalog.Lists(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	buckets := Expand(rec.Criteria, lists)

	if err := e.cleanup(ctx, rec.UserID); err != nil {
		return err
	}
	if err := e.enqueue(ctx, rec.UserID, rec.Criteria, buckets, &rec); err != nil {
		return err
	}
	e.log.Debug("request requeued", "user_id", rec.UserID, "seniority_ts", rec.SeniorityTs)

	_, err = e.tryMatch(ctx, rec.UserID, buckets)
	return err
}

// Buckets returns the bucket keys the user currently occupies.
func (e *Engine) Buckets(ctx context.Context, userID string) ([]string, error) {
	return e.store.SetMembers(ctx, userBucketsKey(userID))
}
