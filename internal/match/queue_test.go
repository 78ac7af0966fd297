package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRequest_EnqueuesExactCrossProduct(t *testing.T) {
	tests := []struct {
		name       string
		difficulty string
		topics     []string
		want       []string
	}{
		{"single bucket", "Easy", []string{"AI"}, []string{"Q:Easy:AI"}},
		{"any difficulty", "", []string{"Graphs"}, []string{"Q:Easy:Graphs", "Q:Medium:Graphs", "Q:Hard:Graphs"}},
		{"any topic", "Hard", nil, []string{"Q:Hard:AI", "Q:Hard:Trees", "Q:Hard:Graphs"}},
		{"two topics any difficulty", "", []string{"AI", "Trees"}, []string{
			"Q:Easy:AI", "Q:Easy:Trees", "Q:Medium:AI", "Q:Medium:Trees", "Q:Hard:AI", "Q:Hard:Trees",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			harnesses(t, func(t *testing.T, h *harness) {
				h.submit(t, "alice", tt.difficulty, tt.topics...)

				assert.ElementsMatch(t, tt.want, h.occupied(t, "alice"))
				idx, err := h.engine.Buckets(context.Background(), "alice")
				require.NoError(t, err)
				assert.ElementsMatch(t, tt.want, idx)

				rec := h.status(t, "alice")
				assert.Equal(t, StatusQueued, rec.Status)
				assert.Equal(t, h.clock.Now().UnixMilli(), rec.CreatedAt.UnixMilli())
				assert.Equal(t, rec.CreatedAt, rec.SeniorityTs)
				assert.Contains(t, h.members(t, activeUsersKey), "alice")
			})
		})
	}
}

func TestCreateRequest_ValidationMutatesNothing(t *testing.T) {
	harnesses(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.submit(t, "alice", "Easy", "AI")
		before := h.status(t, "alice")

		err := h.engine.CreateRequest(ctx, "alice", Criteria{Difficulty: "Hard", Topics: []string{"AI", "Trees", "Graphs"}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))

		err = h.engine.CreateRequest(ctx, "bob", Criteria{Difficulty: "Impossible"})
		require.True(t, errors.Is(err, ErrValidation))

		assert.Equal(t, before, h.status(t, "alice"))
		assert.Equal(t, []string{"Q:Easy:AI"}, h.occupied(t, "alice"))
		assert.Equal(t, StatusNone, h.status(t, "bob").Status)
		assert.Empty(t, h.occupied(t, "bob"))
		assert.NotContains(t, h.members(t, activeUsersKey), "bob")
	})
}

func TestCreateRequest_EmptyUser(t *testing.T) {
	h := newHarness(t)
	err := h.engine.CreateRequest(context.Background(), "", Criteria{Difficulty: "Easy"})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestCreateRequest_ReplacesQueuedRequestKeepingSeniority(t *testing.T) {
	harnesses(t, func(t *testing.T, h *harness) {
		h.submit(t, "alice", "Easy", "AI")
		first := h.status(t, "alice")

		h.clock.Advance(10 * time.Second)
		h.submit(t, "alice", "Hard", "Trees")

		rec := h.status(t, "alice")
		assert.Equal(t, StatusQueued, rec.Status)
		assert.Equal(t, Criteria{Difficulty: "Hard", Topics: []string{"Trees"}}, rec.Criteria)
		assert.Equal(t, first.SeniorityTs, rec.SeniorityTs)
		assert.True(t, rec.CreatedAt.After(first.CreatedAt))
		assert.Equal(t, []string{"Q:Hard:Trees"}, h.occupied(t, "alice"))
	})
}

func TestCreateRequest_RejectedDuringHandshake(t *testing.T) {
	harnesses(t, func(t *testing.T, h *harness) {
		h.submit(t, "alice", "Easy", "AI")
		h.submit(t, "bob", "Easy", "AI")
		require.Equal(t, StatusPendingAccept, h.status(t, "alice").Status)

		err := h.engine.CreateRequest(context.Background(), "alice", Criteria{Difficulty: "Hard"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrHandshakePending))
		assert.Equal(t, StatusPendingAccept, h.status(t, "alice").Status)
	})
}

func TestCleanup_Idempotent(t *testing.T) {
	harnesses(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.submit(t, "alice", "", "AI", "Trees")
		h.submit(t, "carol", "Hard", "Graphs")

		require.NoError(t, h.engine.cleanup(ctx, "alice"))
		snapshot := map[string][]string{}
		for _, k := range allBucketKeys() {
			snapshot[k] = h.list(t, k)
		}
		ub := h.members(t, userBucketsKey("alice"))

		require.NoError(t, h.engine.cleanup(ctx, "alice"))
		for _, k := range allBucketKeys() {
			assert.Equal(t, snapshot[k], h.list(t, k), k)
		}
		assert.Equal(t, ub, h.members(t, userBucketsKey("alice")))
		assert.Empty(t, h.occupied(t, "alice"))
		assert.Equal(t, []string{"Q:Hard:Graphs"}, h.occupied(t, "carol"))
	})
}

func TestCleanup_UnknownUser(t *testing.T) {
	h := newHarness(t)
	assert.NoError(t, h.engine.cleanup(context.Background(), "ghost"))
}

func TestStatus_NoRecord(t *testing.T) {
	harnesses(t, func(t *testing.T, h *harness) {
		rec := h.status(t, "nobody")
		assert.Equal(t, "nobody", rec.UserID)
		assert.Equal(t, StatusNone, rec.Status)
		assert.Equal(t, []string{}, rec.Criteria.Topics)
		assert.Empty(t, rec.PairID)
	})
}

func TestCancel(t *testing.T) {
	harnesses(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.submit(t, "alice", "", "AI")

		require.NoError(t, h.engine.Cancel(ctx, "alice"))
		rec := h.status(t, "alice")
		assert.Equal(t, StatusNone, rec.Status)
		assert.Equal(t, Criteria{Topics: []string{"AI"}}, rec.Criteria)
		assert.Empty(t, h.occupied(t, "alice"))
		assert.NotContains(t, h.members(t, activeUsersKey), "alice")

		// cancelling again, or with no request at all, is fine
		require.NoError(t, h.engine.Cancel(ctx, "alice"))
		require.NoError(t, h.engine.Cancel(ctx, "ghost"))
		assert.Equal(t, StatusNone, h.status(t, "ghost").Status)
	})
}

func TestCancel_IgnoredDuringHandshake(t *testing.T) {
	harnesses(t, func(t *testing.T, h *harness) {
		h.submit(t, "alice", "Easy", "AI")
		h.submit(t, "bob", "Easy", "AI")
		pairID := h.status(t, "alice").PairID
		require.NotEmpty(t, pairID)

		require.NoError(t, h.engine.Cancel(context.Background(), "alice"))
		rec := h.status(t, "alice")
		assert.Equal(t, StatusPendingAccept, rec.Status)
		assert.Equal(t, pairID, rec.PairID)
		assert.True(t, h.pairExists(t, pairID))
	})
}

func TestRequeue_PreservesSeniority(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "alice", "Medium", "Trees")
	rec := h.status(t, "alice")

	h.clock.Advance(time.Minute)
	require.NoError(t, h.engine.requeue(context.Background(), rec))

	after := h.status(t, "alice")
	assert.Equal(t, rec.SeniorityTs, after.SeniorityTs)
	assert.Equal(t, h.clock.Now().UnixMilli(), after.CreatedAt.UnixMilli())
	assert.Equal(t, []string{"Q:Medium:Trees"}, h.occupied(t, "alice"))
	assert.Equal(t, []string{"alice"}, h.list(t, "Q:Medium:Trees"))
}
