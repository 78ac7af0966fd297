package match

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// SweepResult summarizes one reconciliation pass.
type SweepResult struct {
	ExpiredRequests int
	ExpiredPairs    int
	Failures        int
}

// Sweeper periodically enforces the queue TTL and the accept window.
// Start blocks; Stop cancels it and waits for the running pass to finish.
// A Sweeper runs once: Start is called at most one time.
type Sweeper struct {
	engine   *Engine
	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
}

func NewSweeper(e *Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sweeper{engine: e, interval: interval, ctx: ctx, cancel: cancel}
	// counted here so Stop waits even if Start has not been scheduled yet
	s.wg.Add(1)
	return s
}

// Start runs a pass every interval until ctx or Stop cancels it.
func (s *Sweeper) Start(ctx context.Context) {
	if s.started.Swap(true) {
		s.engine.log.Warn("sweeper already started")
		return
	}
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log := s.engine.log
	log.Info("sweeper started", "interval", s.interval)

	for {
		select {
		case <-ticker.C:
			res := s.SweepOnce(ctx)
			if res.ExpiredRequests+res.ExpiredPairs+res.Failures > 0 {
				log.Info("sweep done",
					"expired_requests", res.ExpiredRequests,
					"expired_pairs", res.ExpiredPairs,
					"failures", res.Failures)
			}
		case <-ctx.Done():
			log.Info("sweeper stopping", "reason", ctx.Err())
			return
		case <-s.ctx.Done():
			log.Info("sweeper stopping", "reason", "stopped")
			return
		}
	}
}

// Stop cancels Start and waits for it to return. Start must have been
// called, or be about to be called, on another goroutine.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

// SweepOnce runs both passes once against the engine's clock. A failure on
// one user or pair is logged and counted; it never stops the pass.
func (s *Sweeper) SweepOnce(ctx context.Context) SweepResult {
	var res SweepResult
	e := s.engine
	now := e.now()

	users, err := e.store.SetMembers(ctx, activeUsersKey)
	if err != nil {
		e.log.Error("sweeper: list active users", "err", err)
		res.Failures++
	}
	for _, u := range users {
		expired, err := e.sweepUser(ctx, u, now)
		if err != nil {
			e.log.Error("sweeper: user", "user_id", u, "err", err)
			res.Failures++
			continue
		}
		if expired {
			res.ExpiredRequests++
		}
	}

	pairs, err := e.store.SetMembers(ctx, activePairsKey)
	if err != nil {
		e.log.Error("sweeper: list active pairs", "err", err)
		res.Failures++
	}
	for _, id := range pairs {
		expired, err := e.sweepPair(ctx, id, now)
		if err != nil {
			e.log.Error("sweeper: pair", "pair_id", id, "err", err)
			res.Failures++
			continue
		}
		if expired {
			res.ExpiredPairs++
		}
	}
	return res
}

// sweepUser expires a queued request older than the queue TTL. It also
// drops index entries for users that are no longer queued or pending, and
// requeues a pending user whose pair vanished after its window closed.
func (e *Engine) sweepUser(ctx context.Context, userID string, now time.Time) (bool, error) {
	rec, found, err := e.loadRequest(ctx, userID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, e.store.SetRemove(ctx, activeUsersKey, userID)
	}

	switch rec.Status {
	case StatusQueued:
		if now.Sub(rec.CreatedAt) < e.queueTTL {
			return false, nil
		}
		return e.expireRequest(ctx, userID, now)

	case StatusPendingAccept:
		if rec.ExpiresAt.IsZero() || now.Before(rec.ExpiresAt) {
			return false, nil
		}
		_, pairFound, err := e.loadPair(ctx, rec.PairID)
		if err != nil || pairFound {
			return false, err
		}
		e.log.Warn("orphaned handshake, requeueing", "user_id", userID, "pair_id", rec.PairID)
		return false, e.requeue(ctx, rec)

	default:
		return false, e.store.SetRemove(ctx, activeUsersKey, userID)
	}
}

func (e *Engine) expireRequest(ctx context.Context, userID string, now time.Time) (bool, error) {
	claimed, release, err := e.claim(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", userID, err)
	}
	if !claimed {
		// a matcher holds the user right now; next pass will see the outcome
		return false, nil
	}
	defer release()

	rec, found, err := e.loadRequest(ctx, userID)
	if err != nil {
		return false, err
	}
	if !found || rec.Status != StatusQueued || now.Sub(rec.CreatedAt) < e.queueTTL {
		return false, nil
	}

	if err := e.cleanup(ctx, userID); err != nil {
		return false, err
	}
	if err := e.store.HashSet(ctx, requestKey(userID), map[string]string{"status": StatusExpired.String()}); err != nil {
		return false, fmt.Errorf("expire %s: %w", userID, err)
	}
	if err := e.store.SetRemove(ctx, activeUsersKey, userID); err != nil {
		return false, err
	}
	e.log.Info("request expired", "user_id", userID, "queued_for", now.Sub(rec.CreatedAt))
	return true, nil
}

// sweepPair resolves a pair whose accept window has passed.
func (e *Engine) sweepPair(ctx context.Context, pairID string, now time.Time) (bool, error) {
	p, found, err := e.loadPair(ctx, pairID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, e.store.SetRemove(ctx, activePairsKey, pairID)
	}
	if now.Before(p.ExpiresAt) {
		return false, nil
	}

	won, err := e.store.TryAcquireLock(ctx, pairLockKey(pairID), e.lockTTL)
	if err != nil {
		return false, fmt.Errorf("acquire pair lock %s: %w", pairID, err)
	}
	if !won {
		return false, nil
	}

	switch {
	case p.AAccepted && p.BAccepted:
		// both accepted but nobody finalized: finish the job
		return true, e.finalize(ctx, p)
	case p.AAccepted:
		e.log.Info("handshake expired", "pair_id", pairID, "requeued", p.UserA, "dropped", p.UserB)
		return true, e.dissolve(ctx, p, []string{p.UserA}, []string{p.UserB})
	case p.BAccepted:
		e.log.Info("handshake expired", "pair_id", pairID, "requeued", p.UserB, "dropped", p.UserA)
		return true, e.dissolve(ctx, p, []string{p.UserB}, []string{p.UserA})
	default:
		e.log.Info("handshake expired", "pair_id", pairID, "requeued", p.UserA+","+p.UserB)
		return true, e.dissolve(ctx, p, []string{p.UserA, p.UserB}, nil)
	}
}
