package matching

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/peer-match/internal/app"
	svcErr "github.com/oggyb/peer-match/internal/errors"
	"github.com/oggyb/peer-match/internal/match"
	"github.com/oggyb/peer-match/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service implements the Matching gRPC API on top of the matching engine
// and the session history repository.
type Service struct {
	appCtx   *app.AppContext
	engine   *match.Engine
	sessions *repository.SessionRepository
}

// NewMatchingService creates a new Matching service with dependencies from AppContext.
func NewMatchingService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		engine:   appCtx.Engine,
		sessions: appCtx.Sessions,
	}
}

// CreateRequest queues the caller and tries to pair them immediately.
//
// Request: {user_id, difficulty?, topics?}
// Response: {ok}
func (s *Service) CreateRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID := str(in, "user_id")
	c := match.Criteria{
		Difficulty: strings.TrimSpace(str(in, "difficulty")),
		Topics:     strList(in, "topics"),
	}
	s.appCtx.Logger.Debug("CreateRequest called", "user_id", userID, "difficulty", c.Difficulty, "topics", c.Topics)

	if userID == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	if err := s.engine.CreateRequest(ctx, userID, c); err != nil {
		s.appCtx.Logger.Warn("CreateRequest failed", "user_id", userID, "err", err)
		return nil, svcErr.Map(err)
	}
	return ok()
}

// Cancel withdraws the caller's queued request.
//
// Request: {user_id}
// Response: {ok}
func (s *Service) Cancel(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID := str(in, "user_id")
	s.appCtx.Logger.Debug("Cancel called", "user_id", userID)

	if userID == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	if err := s.engine.Cancel(ctx, userID); err != nil {
		return nil, svcErr.Map(err)
	}
	return ok()
}

// Status returns a snapshot of the caller's request.
//
// Request: {user_id}
// Response: {user_id, status, difficulty, topics, created_at, seniority_ts,
// pair_id, expires_at, session_id, session_url, session_token}; times are
// unix millis, 0 when unset.
func (s *Service) Status(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID := str(in, "user_id")
	if userID == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	rec, err := s.engine.Status(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return toStruct(map[string]any{
		"user_id":       rec.UserID,
		"status":        rec.Status.String(),
		"difficulty":    rec.Criteria.Difficulty,
		"topics":        anyList(rec.Criteria.Topics),
		"created_at":    unixMilli(rec.CreatedAt),
		"seniority_ts":  unixMilli(rec.SeniorityTs),
		"pair_id":       rec.PairID,
		"expires_at":    unixMilli(rec.ExpiresAt),
		"session_id":    rec.SessionID,
		"session_url":   rec.SessionURL,
		"session_token": rec.SessionToken,
	})
}

// GetPair returns a pending pair, so either member can see whether the
// other side already accepted.
//
// Request: {pair_id}
// Response: {pair_id, user_a, user_b, a_accepted, b_accepted, expires_at,
// difficulty, topic}
func (s *Service) GetPair(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	pairID := str(in, "pair_id")
	if pairID == "" {
		return nil, svcErr.InvalidArgument("pair_id is required")
	}
	p, err := s.engine.Pair(ctx, pairID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return toStruct(map[string]any{
		"pair_id":    p.ID,
		"user_a":     p.UserA,
		"user_b":     p.UserB,
		"a_accepted": p.AAccepted,
		"b_accepted": p.BAccepted,
		"expires_at": unixMilli(p.ExpiresAt),
		"difficulty": p.Difficulty,
		"topic":      p.Topic,
	})
}

// Accept records the caller's acceptance of a pair.
//
// Request: {user_id, pair_id}
// Response: {ok}
func (s *Service) Accept(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, pairID, err := memberArgs(in)
	if err != nil {
		return nil, err
	}
	s.appCtx.Logger.Debug("Accept called", "user_id", userID, "pair_id", pairID)

	if err := s.engine.Accept(ctx, userID, pairID); err != nil {
		s.appCtx.Logger.Warn("Accept failed", "user_id", userID, "pair_id", pairID, "err", err)
		return nil, svcErr.Map(err)
	}
	return ok()
}

// Decline dissolves a pair; the partner is requeued.
//
// Request: {user_id, pair_id}
// Response: {ok}
func (s *Service) Decline(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, pairID, err := memberArgs(in)
	if err != nil {
		return nil, err
	}
	s.appCtx.Logger.Debug("Decline called", "user_id", userID, "pair_id", pairID)

	if err := s.engine.Decline(ctx, userID, pairID); err != nil {
		return nil, svcErr.Map(err)
	}
	return ok()
}

// Retry re-enqueues the caller's last request.
//
// Request: {user_id, mode: "same"|"broaden"}
// Response: {ok, applied_criteria: {difficulty, topics}}
func (s *Service) Retry(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID := str(in, "user_id")
	mode := match.RetryMode(strings.ToLower(str(in, "mode")))
	s.appCtx.Logger.Debug("Retry called", "user_id", userID, "mode", string(mode))

	if userID == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	applied, err := s.engine.Retry(ctx, userID, mode)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return toStruct(map[string]any{
		"ok": true,
		"applied_criteria": map[string]any{
			"difficulty": applied.Difficulty,
			"topics":     anyList(applied.Topics),
		},
	})
}

// ListSessions returns the caller's past sessions, newest first.
//
// Request: {user_id, pagination_token?, page_size?}
// Response: {sessions: [{session_id, pair_id, partner_id, difficulty, topic,
// created_at}], next_pagination_token?}
func (s *Service) ListSessions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID := str(in, "user_id")
	s.appCtx.Logger.Debug("ListSessions called", "user_id", userID, "token", str(in, "pagination_token"))

	if userID == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "session history is not configured")
	}

	limit := int(in.GetFields()["page_size"].GetNumberValue())
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	var token *string
	if t := str(in, "pagination_token"); t != "" {
		token = &t
	}

	rows, next, err := s.sessions.ListForUser(ctx, userID, token, limit)
	if err != nil {
		s.appCtx.Logger.Error("ListForUser failed", "err", err)
		return nil, svcErr.Map(err)
	}

	sessions := make([]any, 0, len(rows))
	for _, r := range rows {
		partner := r.UserB
		if partner == userID {
			partner = r.UserA
		}
		sessions = append(sessions, map[string]any{
			"session_id": r.SessionID,
			"pair_id":    r.PairID,
			"partner_id": partner,
			"difficulty": r.Difficulty,
			"topic":      r.Topic,
			"created_at": r.CreatedAt.UnixMilli(),
		})
	}

	resp := map[string]any{"sessions": sessions}
	if next != nil {
		resp["next_pagination_token"] = *next
	}

	s.appCtx.Logger.Debug("ListSessions result", "session_count", len(sessions), "next_token", resp["next_pagination_token"])
	return toStruct(resp)
}

//
// message helpers
//

func str(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

// strList accepts a list of strings or a single comma-separated string.
func strList(in *structpb.Struct, key string) []string {
	v := in.GetFields()[key]
	var out []string
	if list := v.GetListValue(); list != nil {
		for _, item := range list.GetValues() {
			if s := strings.TrimSpace(item.GetStringValue()); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	for _, s := range strings.Split(v.GetStringValue(), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func memberArgs(in *structpb.Struct) (string, string, error) {
	userID, pairID := str(in, "user_id"), str(in, "pair_id")
	if userID == "" || pairID == "" {
		return "", "", svcErr.InvalidArgument("user_id and pair_id are required")
	}
	return userID, pairID, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func anyList(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func ok() (*structpb.Struct, error) {
	return toStruct(map[string]any{"ok": true})
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return st, nil
}
