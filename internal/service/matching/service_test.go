package matching_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/oggyb/peer-match/internal/app"
	"github.com/oggyb/peer-match/internal/catalog"
	"github.com/oggyb/peer-match/internal/config"
	"github.com/oggyb/peer-match/internal/db"
	"github.com/oggyb/peer-match/internal/logger"
	"github.com/oggyb/peer-match/internal/match"
	"github.com/oggyb/peer-match/internal/repository"
	"github.com/oggyb/peer-match/internal/server"
	"github.com/oggyb/peer-match/internal/service/matching"
	"github.com/oggyb/peer-match/internal/session"
	"github.com/oggyb/peer-match/internal/store"
)

//
// Test helpers
//

type testEnv struct {
	client *matching.Client
	engine *match.Engine
	db     *gorm.DB
}

// setupService spins up an in-memory SQLite DB, a miniredis, a real engine
// and serves the Matching service over bufconn.
//
// Each test gets its own isolated DB + Redis.
func setupService(t *testing.T) *testEnv {
	t.Helper()

	// In-memory SQLite
	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbase, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(dbase))

	// Fake Redis
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	kv := store.NewRedisStore(cfg)
	t.Cleanup(func() { _ = kv.Close() })

	log := logger.Discard()
	engine := match.New(match.Options{
		Store: kv,
		Catalog: catalog.Static(catalog.Lists{
			Difficulties: []string{"Easy", "Medium", "Hard"},
			Topics:       []string{"AI", "Trees", "Graphs"},
		}),
		Bootstrapper: session.NewLocalBootstrapper("test-secret", "ws://collab/room"),
		History:      repository.NewSessionRepository(dbase),
		Logger:       log,
	})

	appCtx := app.New(dbase, engine, log)

	lis := bufconn.Listen(1 << 20)
	srv := server.NewGRPCServer(matching.NewRegistrar(appCtx))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testEnv{client: matching.NewClient(conn), engine: engine, db: dbase}
}

func (e *testEnv) call(t *testing.T, method string, fields map[string]any) *structpb.Struct {
	t.Helper()
	out, err := e.client.Call(context.Background(), method, fields)
	require.NoError(t, err, method)
	return out
}

func (e *testEnv) callErr(t *testing.T, method string, fields map[string]any) codes.Code {
	t.Helper()
	_, err := e.client.Call(context.Background(), method, fields)
	require.Error(t, err, method)
	return status.Code(err)
}

func field(s *structpb.Struct, key string) *structpb.Value { return s.GetFields()[key] }

//
// Tests
//

// TestMatchAndAcceptFlow walks two users from request to a ready session.
func TestMatchAndAcceptFlow(t *testing.T) {
	env := setupService(t)

	resp := env.call(t, "CreateRequest", map[string]any{"user_id": "alice", "difficulty": "Easy", "topics": []any{"AI"}})
	assert.True(t, field(resp, "ok").GetBoolValue())
	env.call(t, "CreateRequest", map[string]any{"user_id": "bob", "difficulty": "Easy", "topics": []any{"AI"}})

	a := env.call(t, "Status", map[string]any{"user_id": "alice"})
	b := env.call(t, "Status", map[string]any{"user_id": "bob"})
	require.Equal(t, "PENDING_ACCEPT", field(a, "status").GetStringValue())
	pairID := field(a, "pair_id").GetStringValue()
	require.NotEmpty(t, pairID)
	assert.Equal(t, pairID, field(b, "pair_id").GetStringValue())
	assert.Greater(t, field(a, "expires_at").GetNumberValue(), float64(0))

	env.call(t, "Accept", map[string]any{"user_id": "alice", "pair_id": pairID})
	p := env.call(t, "GetPair", map[string]any{"pair_id": pairID})
	assert.True(t, field(p, "a_accepted").GetBoolValue())
	assert.False(t, field(p, "b_accepted").GetBoolValue())
	assert.Equal(t, "Easy", field(p, "difficulty").GetStringValue())

	env.call(t, "Accept", map[string]any{"user_id": "bob", "pair_id": pairID})

	a = env.call(t, "Status", map[string]any{"user_id": "alice"})
	b = env.call(t, "Status", map[string]any{"user_id": "bob"})
	assert.Equal(t, "SESSION_READY", field(a, "status").GetStringValue())
	assert.Equal(t, "SESSION_READY", field(b, "status").GetStringValue())
	sessionID := field(a, "session_id").GetStringValue()
	assert.NotEmpty(t, sessionID)
	assert.Equal(t, sessionID, field(b, "session_id").GetStringValue())
	assert.Equal(t, "ws://collab/room", field(a, "session_url").GetStringValue())
	assert.NotEqual(t, field(a, "session_token").GetStringValue(), field(b, "session_token").GetStringValue())

	assert.Equal(t, codes.NotFound, env.callErr(t, "GetPair", map[string]any{"pair_id": pairID}))

	// the session landed in the history
	hist := env.call(t, "ListSessions", map[string]any{"user_id": "bob"})
	sessions := field(hist, "sessions").GetListValue().GetValues()
	require.Len(t, sessions, 1)
	row := sessions[0].GetStructValue()
	assert.Equal(t, sessionID, field(row, "session_id").GetStringValue())
	assert.Equal(t, "alice", field(row, "partner_id").GetStringValue())
	assert.Equal(t, "AI", field(row, "topic").GetStringValue())
}

func TestDeclineRequeuesPartner(t *testing.T) {
	env := setupService(t)
	env.call(t, "CreateRequest", map[string]any{"user_id": "alice", "topics": "AI"})
	env.call(t, "CreateRequest", map[string]any{"user_id": "bob", "difficulty": "Medium"})
	pairID := field(env.call(t, "Status", map[string]any{"user_id": "alice"}), "pair_id").GetStringValue()
	require.NotEmpty(t, pairID)

	env.call(t, "Decline", map[string]any{"user_id": "bob", "pair_id": pairID})

	a := env.call(t, "Status", map[string]any{"user_id": "alice"})
	assert.Equal(t, "QUEUED", field(a, "status").GetStringValue())
	assert.Equal(t, []any{"AI"}, field(a, "topics").GetListValue().AsSlice())
	assert.Equal(t, "NONE", field(env.call(t, "Status", map[string]any{"user_id": "bob"}), "status").GetStringValue())
}

func TestRetryBroaden(t *testing.T) {
	env := setupService(t)
	env.call(t, "CreateRequest", map[string]any{"user_id": "alice", "difficulty": "Hard", "topics": []any{"Trees"}})

	resp := env.call(t, "Retry", map[string]any{"user_id": "alice", "mode": "BROADEN"})
	assert.True(t, field(resp, "ok").GetBoolValue())
	applied := field(resp, "applied_criteria").GetStructValue()
	assert.Equal(t, "Medium", field(applied, "difficulty").GetStringValue())
	assert.Equal(t, []any{"Trees"}, field(applied, "topics").GetListValue().AsSlice())
}

func TestCancel(t *testing.T) {
	env := setupService(t)
	env.call(t, "CreateRequest", map[string]any{"user_id": "alice", "difficulty": "Easy"})
	env.call(t, "Cancel", map[string]any{"user_id": "alice"})

	st := env.call(t, "Status", map[string]any{"user_id": "alice"})
	assert.Equal(t, "NONE", field(st, "status").GetStringValue())

	// unknown users get a NONE snapshot
	st = env.call(t, "Status", map[string]any{"user_id": "nobody"})
	assert.Equal(t, "NONE", field(st, "status").GetStringValue())
	assert.Equal(t, float64(0), field(st, "created_at").GetNumberValue())
}

func TestErrorCodes(t *testing.T) {
	env := setupService(t)
	env.call(t, "CreateRequest", map[string]any{"user_id": "alice", "difficulty": "Easy", "topics": []any{"AI"}})
	env.call(t, "CreateRequest", map[string]any{"user_id": "bob", "difficulty": "Easy", "topics": []any{"AI"}})
	pairID := field(env.call(t, "Status", map[string]any{"user_id": "alice"}), "pair_id").GetStringValue()

	tests := []struct {
		name   string
		method string
		fields map[string]any
		want   codes.Code
	}{
		{"missing user", "CreateRequest", map[string]any{"difficulty": "Easy"}, codes.InvalidArgument},
		{"too many categories", "CreateRequest", map[string]any{"user_id": "carol", "difficulty": "Easy", "topics": []any{"AI", "Trees", "Graphs"}}, codes.InvalidArgument},
		{"unknown topic", "CreateRequest", map[string]any{"user_id": "carol", "topics": []any{"Cooking"}}, codes.InvalidArgument},
		{"nothing selected", "CreateRequest", map[string]any{"user_id": "carol"}, codes.InvalidArgument},
		{"resubmit while pending", "CreateRequest", map[string]any{"user_id": "alice", "difficulty": "Hard"}, codes.FailedPrecondition},
		{"accept unknown pair", "Accept", map[string]any{"user_id": "alice", "pair_id": "nope"}, codes.NotFound},
		{"accept someone else's pair", "Accept", map[string]any{"user_id": "mallory", "pair_id": pairID}, codes.PermissionDenied},
		{"decline without pair", "Decline", map[string]any{"user_id": "alice"}, codes.InvalidArgument},
		{"retry without request", "Retry", map[string]any{"user_id": "ghost", "mode": "same"}, codes.NotFound},
		{"retry bad mode", "Retry", map[string]any{"user_id": "alice", "mode": "sideways"}, codes.InvalidArgument},
		{"retry while pending", "Retry", map[string]any{"user_id": "alice", "mode": "same"}, codes.FailedPrecondition},
		{"bad page token", "ListSessions", map[string]any{"user_id": "alice", "pagination_token": "garbage!"}, codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, env.callErr(t, tt.method, tt.fields))
		})
	}
}

func TestListSessionsPagination(t *testing.T) {
	env := setupService(t)
	require.NoError(t, db.SeedMinimalTestData(env.db))

	page1 := env.call(t, "ListSessions", map[string]any{"user_id": "user1", "page_size": 2})
	rows := field(page1, "sessions").GetListValue().GetValues()
	require.Len(t, rows, 2)
	assert.Equal(t, "S_seed_3", field(rows[0].GetStructValue(), "session_id").GetStringValue())
	assert.Equal(t, "S_seed_2", field(rows[1].GetStructValue(), "session_id").GetStringValue())
	assert.Equal(t, "user3", field(rows[1].GetStructValue(), "partner_id").GetStringValue())

	token := field(page1, "next_pagination_token").GetStringValue()
	require.NotEmpty(t, token)

	page2 := env.call(t, "ListSessions", map[string]any{"user_id": "user1", "page_size": 2, "pagination_token": token})
	rows = field(page2, "sessions").GetListValue().GetValues()
	require.Len(t, rows, 1)
	assert.Equal(t, "S_seed_1", field(rows[0].GetStructValue(), "session_id").GetStringValue())
	_, hasNext := page2.GetFields()["next_pagination_token"]
	assert.False(t, hasNext)
}
