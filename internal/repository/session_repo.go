package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/peer-match/internal/db"
	"github.com/oggyb/peer-match/internal/match"
	"github.com/oggyb/peer-match/internal/utils/pagination"
)

// SessionRepository stores the history of finalized matches.
// It implements match.HistoryRecorder.
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new repository bound to the given DB connection.
func NewSessionRepository(database *gorm.DB) *SessionRepository {
	return &SessionRepository{db: database}
}

// RecordSession inserts a finalized session.
//
// Behavior:
//   - SessionID is unique: recording the same session twice keeps the first row.
//   - CreatedAt is taken from rec when set, otherwise from the DB clock.
func (r *SessionRepository) RecordSession(ctx context.Context, rec match.SessionRecord) error {
	row := db.Session{
		SessionID:  rec.SessionID,
		PairID:     rec.PairID,
		UserA:      rec.UserA,
		UserB:      rec.UserB,
		Difficulty: rec.Difficulty,
		Topic:      rec.Topic,
	}
	if !rec.CreatedAt.IsZero() {
		row.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Millisecond)
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoNothing: true,
		}).
		Create(&row).Error
}

// ListForUser returns the sessions the user took part in, on either side.
//
// Behavior:
//   - Ordered by created_at DESC, id DESC.
//   - Supports cursor-based pagination via paginationToken.
//
// Example:
//
//	repo.ListForUser(ctx, "user1", nil, 20) // 20 most recent sessions of user1
func (r *SessionRepository) ListForUser(
	ctx context.Context,
	userID string,
	paginationToken *string,
	limit int,
) ([]db.Session, *string, error) {
	var sessions []db.Session

	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Model(&db.Session{}).
		Where("(user_a = ? OR user_b = ?)", userID, userID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	// apply cursor
	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.CreatedUnix).UTC()
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND id < ?))",
			ts, ts, cursor.ID,
		)
	}

	if err := query.Find(&sessions).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(sessions) > limit {
		last := sessions[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ID:          last.ID,
			CreatedUnix: last.CreatedAt.UnixMilli(),
		})
		nextToken = &token
		sessions = sessions[:limit]
	}

	return sessions, nextToken, nil
}

// CountForUser returns how many sessions the user took part in.
func (r *SessionRepository) CountForUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Session{}).
		Where("user_a = ? OR user_b = ?", userID, userID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
