package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/peer-match/internal/catalog"
	"github.com/oggyb/peer-match/internal/config"
	"github.com/oggyb/peer-match/internal/logger"
	"github.com/oggyb/peer-match/internal/session"
	"github.com/oggyb/peer-match/internal/store"
)

var testLists = catalog.Lists{
	Difficulties: []string{"Easy", "Medium", "Hard"},
	Topics:       []string{"AI", "Trees", "Graphs"},
}

const (
	queueTTL     = 2 * time.Minute
	acceptWindow = 25 * time.Second
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// countingBootstrapper hands out S_1, S_2, ... and remembers every call.
type countingBootstrapper struct {
	mu    sync.Mutex
	calls [][2]string
	fail  error
}

func (b *countingBootstrapper) CreateSession(_ context.Context, p [2]string) (session.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return session.Session{}, b.fail
	}
	b.calls = append(b.calls, p)
	return session.Session{ID: fmt.Sprintf("S_%d", len(b.calls))}, nil
}

func (b *countingBootstrapper) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

type memoryHistory struct {
	mu   sync.Mutex
	recs []SessionRecord
	fail bool
}

func (h *memoryHistory) RecordSession(_ context.Context, rec SessionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail {
		return errors.New("history down")
	}
	h.recs = append(h.recs, rec)
	return nil
}

type harness struct {
	engine    *Engine
	store     store.KeyValueStore
	clock     *fakeClock
	bootstrap *countingBootstrapper
	history   *memoryHistory
	sweeper   *Sweeper
}

func newHarnessWithStore(t *testing.T, kv store.KeyValueStore) *harness {
	t.Helper()
	h := &harness{
		store:     kv,
		clock:     newFakeClock(),
		bootstrap: &countingBootstrapper{},
		history:   &memoryHistory{},
	}
	h.engine = New(Options{
		Store:        kv,
		Catalog:      catalog.Static(testLists),
		Bootstrapper: h.bootstrap,
		History:      h.history,
		Logger:       logger.Discard(),
		QueueTTL:     queueTTL,
		AcceptWindow: acceptWindow,
		LockTTL:      30 * time.Second,
		Lookahead:    10,
		Now:          h.clock.Now,
	})
	h.sweeper = NewSweeper(h.engine, time.Second)
	return h
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithStore(t, store.NewMemoryStore())
}

func newRedisHarness(t *testing.T) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	rs := store.NewRedisStore(cfg)
	t.Cleanup(func() { _ = rs.Close() })
	return newHarnessWithStore(t, rs)
}

// harnesses runs f once per store implementation.
func harnesses(t *testing.T, f func(t *testing.T, h *harness)) {
	t.Run("memory", func(t *testing.T) { f(t, newHarness(t)) })
	t.Run("redis", func(t *testing.T) { f(t, newRedisHarness(t)) })
}

func (h *harness) submit(t *testing.T, user, difficulty string, topics ...string) {
	t.Helper()
	if topics == nil {
		topics = []string{}
	}
	require.NoError(t, h.engine.CreateRequest(context.Background(), user, Criteria{Difficulty: difficulty, Topics: topics}))
}

func (h *harness) status(t *testing.T, user string) UserRequest {
	t.Helper()
	rec, err := h.engine.Status(context.Background(), user)
	require.NoError(t, err)
	return rec
}

func (h *harness) list(t *testing.T, key string) []string {
	t.Helper()
	l, err := h.store.ListRange(context.Background(), key, 0, -1)
	require.NoError(t, err)
	return l
}

func (h *harness) members(t *testing.T, key string) []string {
	t.Helper()
	m, err := h.store.SetMembers(context.Background(), key)
	require.NoError(t, err)
	return m
}

func (h *harness) pairExists(t *testing.T, pairID string) bool {
	t.Helper()
	_, found, err := h.engine.loadPair(context.Background(), pairID)
	require.NoError(t, err)
	return found
}

// allBucketKeys is every possible bucket under testLists.
func allBucketKeys() []string {
	var out []string
	for _, b := range Expand(Criteria{}, testLists) {
		out = append(out, b.Key())
	}
	return out
}

// occupied returns the buckets that currently contain user.
func (h *harness) occupied(t *testing.T, user string) []string {
	t.Helper()
	var out []string
	for _, k := range allBucketKeys() {
		for _, u := range h.list(t, k) {
			if u == user {
				out = append(out, k)
				break
			}
		}
	}
	return out
}
