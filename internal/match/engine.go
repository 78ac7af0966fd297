// Package match is the matching engine: criteria-driven queueing, race-free
// pairing, the accept/decline handshake and the reconciliation sweeper.
//
// All state lives in a shared store.KeyValueStore so any number of engine
// instances can serve the same users. Cross-instance exclusion comes only
// from store locks and idempotent cleanup; the engine holds no mutex.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oggyb/peer-match/internal/catalog"
	"github.com/oggyb/peer-match/internal/logger"
	"github.com/oggyb/peer-match/internal/session"
	"github.com/oggyb/peer-match/internal/store"
)

// CatalogSource provides the canonical difficulty and topic lists.
type CatalogSource interface {
	Lists(ctx context.Context) (catalog.Lists, error)
}

// HistoryRecorder persists finalized sessions.
type HistoryRecorder interface {
	RecordSession(ctx context.Context, rec SessionRecord) error
}

type Options struct {
	Store        store.KeyValueStore
	Catalog      CatalogSource
	Bootstrapper session.Bootstrapper
	// History is optional.
	History HistoryRecorder
	Logger  *slog.Logger

	QueueTTL     time.Duration
	AcceptWindow time.Duration
	LockTTL      time.Duration
	// Lookahead bounds how deep a bucket is scanned when its head is the
	// caller itself.
	Lookahead int
	// Now defaults to time.Now.
	Now func() time.Time
}

type Engine struct {
	store     store.KeyValueStore
	catalog   CatalogSource
	bootstrap session.Bootstrapper
	history   HistoryRecorder
	log       *slog.Logger

	queueTTL     time.Duration
	acceptWindow time.Duration
	lockTTL      time.Duration
	lookahead    int
	now          func() time.Time
}

// New wires an engine. Zero durations fall back to 120s queue TTL, 25s
// accept window and 30s lock TTL; a zero lookahead to 10.
func New(opts Options) *Engine {
	e := &Engine{
		store:        opts.Store,
		catalog:      opts.Catalog,
		bootstrap:    opts.Bootstrapper,
		history:      opts.History,
		log:          opts.Logger,
		queueTTL:     opts.QueueTTL,
		acceptWindow: opts.AcceptWindow,
		lockTTL:      opts.LockTTL,
		lookahead:    opts.Lookahead,
		now:          opts.Now,
	}
	if e.catalog == nil {
		e.catalog = catalog.Static(catalog.DefaultLists())
	}
	if e.log == nil {
		e.log = logger.L()
	}
	if e.queueTTL <= 0 {
		e.queueTTL = 120 * time.Second
	}
	if e.acceptWindow <= 0 {
		e.acceptWindow = 25 * time.Second
	}
	if e.lockTTL <= 0 {
		e.lockTTL = 30 * time.Second
	}
	if e.lookahead <= 0 {
		e.lookahead = 10
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// CreateRequest validates criteria, replaces any queued request of the user
// and tries to pair them right away. Validation failures change nothing.
func (e *Engine) CreateRequest(ctx context.Context, userID string, c Criteria) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}

	lists, err := e.catalog.Lists(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	c, buckets, err := Normalize(c, lists)
	if err != nil {
		return err
	}

	prior, found, err := e.loadRequest(ctx, userID)
	if err != nil {
		return err
	}
	if found && prior.Status == StatusPendingAccept {
		return fmt.Errorf("%w: pair %s", ErrHandshakePending, prior.PairID)
	}

	if err := e.cleanup(ctx, userID); err != nil {
		return err
	}
	if err := e.enqueue(ctx, userID, c, buckets, priorOrNil(prior, found)); err != nil {
		return err
	}
	e.log.Debug("request queued", "user_id", userID, "difficulty", c.Difficulty, "topics", c.Topics, "buckets", len(buckets))

	_, err = e.tryMatch(ctx, userID, buckets)
	return err
}

// Cancel withdraws a queued request. A pending handshake is left alone: it
// only ends through accept, decline or expiry.
func (e *Engine) Cancel(ctx context.Context, userID string) error {
	rec, found, err := e.loadRequest(ctx, userID)
	if err != nil {
		return err
	}
	if found && rec.Status == StatusPendingAccept {
		e.log.Debug("cancel ignored during handshake", "user_id", userID, "pair_id", rec.PairID)
		return nil
	}

	if err := e.cleanup(ctx, userID); err != nil {
		return err
	}
	if found {
		if err := e.store.HashSet(ctx, requestKey(userID), map[string]string{
			"status":       StatusNone.String(),
			"pairId":       "",
			"expiresAt":    "",
			"sessionId":    "",
			"sessionUrl":   "",
			"sessionToken": "",
		}); err != nil {
			return err
		}
	}
	return e.store.SetRemove(ctx, activeUsersKey, userID)
}

// Status returns the user's record, or a NONE record if there is none.
func (e *Engine) Status(ctx context.Context, userID string) (UserRequest, error) {
	rec, found, err := e.loadRequest(ctx, userID)
	if err != nil {
		return UserRequest{}, err
	}
	if !found {
		return UserRequest{UserID: userID, Status: StatusNone, Criteria: Criteria{Topics: []string{}}}, nil
	}
	return rec, nil
}

// Pair returns a pending pair by id.
func (e *Engine) Pair(ctx context.Context, pairID string) (Pair, error) {
	p, found, err := e.loadPair(ctx, pairID)
	if err != nil {
		return Pair{}, err
	}
	if !found {
		return Pair{}, ErrPairNotFound
	}
	return p, nil
}

func (e *Engine) loadRequest(ctx context.Context, userID string) (UserRequest, bool, error) {
	h, err := e.store.HashGetAll(ctx, requestKey(userID))
	if err != nil {
		return UserRequest{}, false, fmt.Errorf("load request %s: %w", userID, err)
	}
	return decodeRequest(userID, h)
}

func (e *Engine) loadPair(ctx context.Context, pairID string) (Pair, bool, error) {
	if pairID == "" {
		return Pair{}, false, nil
	}
	h, err := e.store.HashGetAll(ctx, pairKey(pairID))
	if err != nil {
		return Pair{}, false, fmt.Errorf("load pair %s: %w", pairID, err)
	}
	p, ok := decodePair(pairID, h)
	return p, ok, nil
}

// claim takes the per-user claim locks in the given order. On failure every
// lock taken so far is released. The returned func releases all of them.
func (e *Engine) claim(ctx context.Context, users ...string) (bool, func(), error) {
	var held []string
	release := func() {
		for _, u := range held {
			if err := e.store.ReleaseLock(context.WithoutCancel(ctx), claimKey(u)); err != nil {
				e.log.Warn("release claim failed", "user_id", u, "err", err)
			}
		}
	}
	for _, u := range users {
		ok, err := e.store.TryAcquireLock(ctx, claimKey(u), e.lockTTL)
		if err != nil || !ok {
			release()
			return false, func() {}, err
		}
		held = append(held, u)
	}
	return true, release, nil
}

func priorOrNil(rec UserRequest, found bool) *UserRequest {
	if !found {
		return nil
	}
	return &rec
}
