package db

import (
	"time"
)

// Session is one finalized match: both users accepted and a collaboration
// session was bootstrapped for them.
//
// Indexes:
//   - idx_sessions_user_a_created(user_a, created_at DESC, id)
//   - idx_sessions_user_b_created(user_b, created_at DESC, id)
//     Serve "my past sessions" listings, newest first, for either side.
//
// Fields:
//   - SessionID: id returned by the session bootstrapper, unique.
//   - PairID: the pair that produced the session.
//   - UserA/UserB: participants, UserA < UserB.
//   - Difficulty/Topic: the bucket the pair was formed in.
type Session struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	SessionID  string    `gorm:"uniqueIndex;size:64;not null"`
	PairID     string    `gorm:"size:64;not null"`
	UserA      string    `gorm:"size:128;not null;index:idx_sessions_user_a_created,priority:1"`
	UserB      string    `gorm:"size:128;not null;index:idx_sessions_user_b_created,priority:1"`
	Difficulty string    `gorm:"size:32"`
	Topic      string    `gorm:"size:64"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index:idx_sessions_user_a_created,priority:2,sort:desc;index:idx_sessions_user_b_created,priority:2,sort:desc"`
}
