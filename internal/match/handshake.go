package match

import (
	"context"
	"errors"
	"fmt"
)

// Accept records the user's acceptance. When both sides have accepted, the
// session is bootstrapped exactly once and the pair is finalized.
func (e *Engine) Accept(ctx context.Context, userID, pairID string) error {
	p, found, err := e.loadPair(ctx, pairID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrPairNotFound, pairID)
	}
	field := p.acceptField(userID)
	if field == "" {
		return fmt.Errorf("%w: user %s, pair %s", ErrNotPairMember, userID, pairID)
	}

	set, err := e.store.HashSetIfExists(ctx, pairKey(pairID), field, "1")
	if err != nil {
		return fmt.Errorf("accept pair %s: %w", pairID, err)
	}
	if !set {
		return fmt.Errorf("%w: %s", ErrPairNotFound, pairID)
	}
	e.log.Debug("match accepted", "pair_id", pairID, "user_id", userID)

	p, found, err = e.loadPair(ctx, pairID)
	if err != nil {
		return err
	}
	if !found || !p.AAccepted || !p.BAccepted {
		return nil
	}

	won, err := e.store.TryAcquireLock(ctx, pairLockKey(pairID), e.lockTTL)
	if err != nil {
		return fmt.Errorf("acquire pair lock %s: %w", pairID, err)
	}
	if !won {
		// the other side's accept (or the sweeper) is finalizing it
		return nil
	}
	return e.finalize(ctx, p)
}

// Decline dissolves the pair: the partner goes back to the queue keeping
// their seniority, the decliner ends with no request.
func (e *Engine) Decline(ctx context.Context, userID, pairID string) error {
	p, found, err := e.loadPair(ctx, pairID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrPairNotFound, pairID)
	}
	other := p.Other(userID)
	if other == "" {
		return fmt.Errorf("%w: user %s, pair %s", ErrNotPairMember, userID, pairID)
	}

	won, err := e.store.TryAcquireLock(ctx, pairLockKey(pairID), e.lockTTL)
	if err != nil {
		return fmt.Errorf("acquire pair lock %s: %w", pairID, err)
	}
	if !won {
		return fmt.Errorf("%w: %s is already being resolved", ErrPairNotFound, pairID)
	}

	e.log.Info("match declined", "pair_id", pairID, "user_id", userID, "requeued", other)
	return e.dissolve(ctx, p, []string{other}, []string{userID})
}

// finalize must only run while holding the pair lock.
func (e *Engine) finalize(ctx context.Context, p Pair) error {
	sess, err := e.bootstrap.CreateSession(ctx, [2]string{p.UserA, p.UserB})
	if err != nil {
		// let a later accept or the sweeper retry
		_ = e.store.ReleaseLock(context.WithoutCancel(ctx), pairLockKey(p.ID))
		return fmt.Errorf("create session for pair %s: %w", p.ID, err)
	}

	for _, u := range []string{p.UserA, p.UserB} {
		ready := map[string]string{
			"status":       StatusSessionReady.String(),
			"sessionId":    sess.ID,
			"sessionUrl":   sess.WSURL,
			"sessionToken": sess.Credentials[u],
			"expiresAt":    "",
		}
		if err := e.store.HashSet(ctx, requestKey(u), ready); err != nil {
			return fmt.Errorf("mark %s ready: %w", u, err)
		}
	}
	if err := e.store.SetRemove(ctx, activeUsersKey, p.UserA, p.UserB); err != nil {
		return err
	}
	if err := e.destroyPair(ctx, p.ID); err != nil {
		return err
	}

	e.log.Info("session ready", "pair_id", p.ID, "session_id", sess.ID, "user_a", p.UserA, "user_b", p.UserB)

	if e.history != nil {
		rec := SessionRecord{
			SessionID:  sess.ID,
			PairID:     p.ID,
			UserA:      p.UserA,
			UserB:      p.UserB,
			Difficulty: p.Difficulty,
			Topic:      p.Topic,
			CreatedAt:  e.now(),
		}
		if err := e.history.RecordSession(ctx, rec); err != nil {
			e.log.Warn("record session history failed", "session_id", sess.ID, "err", err)
		}
	}
	return nil
}

// dissolve requeues some members and resets the others to NONE, then destroys
// the pair. Members whose record no longer points at this pair are left
// untouched, so replaying a half-finished dissolve is harmless. Must only run
// while holding the pair lock.
func (e *Engine) dissolve(ctx context.Context, p Pair, requeue, drop []string) error {
	var errs []error

	for _, u := range requeue {
		rec, ok, err := e.pendingMember(ctx, u, p.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		if err := e.requeue(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("requeue %s: %w", u, err))
		}
	}

	for _, u := range drop {
		_, ok, err := e.pendingMember(ctx, u, p.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		if err := e.store.HashSet(ctx, requestKey(u), map[string]string{
			"status":    StatusNone.String(),
			"pairId":    "",
			"expiresAt": "",
		}); err != nil {
			errs = append(errs, fmt.Errorf("reset %s: %w", u, err))
			continue
		}
		if err := e.store.SetRemove(ctx, activeUsersKey, u); err != nil {
			errs = append(errs, err)
		}
	}

	if err := e.destroyPair(ctx, p.ID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) pendingMember(ctx context.Context, userID, pairID string) (UserRequest, bool, error) {
	rec, found, err := e.loadRequest(ctx, userID)
	if err != nil || !found {
		return UserRequest{}, false, err
	}
	if rec.Status != StatusPendingAccept || rec.PairID != pairID {
		e.log.Warn("member no longer on pair, skipped", "user_id", userID, "pair_id", pairID, "status", rec.Status.String())
		return UserRequest{}, false, nil
	}
	return rec, true, nil
}

func (e *Engine) destroyPair(ctx context.Context, pairID string) error {
	if err := e.store.SetRemove(ctx, activePairsKey, pairID); err != nil {
		return fmt.Errorf("unindex pair %s: %w", pairID, err)
	}
	if err := e.store.Delete(ctx, pairKey(pairID)); err != nil {
		return fmt.Errorf("delete pair %s: %w", pairID, err)
	}
	return nil
}
