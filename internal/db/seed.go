package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	seedDifficulties = []string{"Easy", "Medium", "Hard"}
	seedTopics       = []string{"AI", "Arrays", "Dynamic Programming", "Graphs", "Sorting", "Trees"}
)

// SeedTestData resets the sessions table and fills it with demo history.
//
// Behavior:
//  1. Clears existing rows in `sessions`.
//  2. Creates ~60 sessions between user1..user12 over the last 30 days,
//     each on a random difficulty/topic.
//  3. Guarantees user1 and user2 have at least 3 sessions together.
//
// Compatible with both MySQL and SQLite (AUTO_INCREMENT reset skipped for SQLite).
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	if err := db.Exec("DELETE FROM sessions").Error; err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}

	switch db.Dialector.Name() {
	case "mysql":
		db.Exec("ALTER TABLE sessions AUTO_INCREMENT = 1")
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence WHERE name = 'sessions'")
	}

	log.Println("Cleared existing data")

	now := time.Now().UTC()
	var rows []Session
	for i := 0; i < 60; i++ {
		a := r.Intn(12) + 1
		b := r.Intn(12) + 1
		if i < 3 {
			a, b = 1, 2
		}
		if a == b {
			continue
		}
		rows = append(rows, seedSession(
			fmt.Sprintf("user%d", a), fmt.Sprintf("user%d", b),
			seedDifficulties[r.Intn(len(seedDifficulties))],
			seedTopics[r.Intn(len(seedTopics))],
			now.Add(-time.Duration(r.Intn(30*24))*time.Hour),
		))
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to seed sessions: %w", err)
	}
	log.Printf("Seeded %d sessions.", len(rows))
	return nil
}

// SeedMinimalTestData inserts a small deterministic history:
// user1 had sessions with user2 (twice) and user3; user2 and user3 had none together.
func SeedMinimalTestData(db *gorm.DB) error {
	if err := db.Exec("DELETE FROM sessions").Error; err != nil {
		return err
	}

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	rows := []Session{
		{SessionID: "S_seed_1", PairID: "P_seed_1", UserA: "user1", UserB: "user2", Difficulty: "Easy", Topic: "Arrays", CreatedAt: base},
		{SessionID: "S_seed_2", PairID: "P_seed_2", UserA: "user1", UserB: "user3", Difficulty: "Medium", Topic: "Graphs", CreatedAt: base.Add(time.Hour)},
		{SessionID: "S_seed_3", PairID: "P_seed_3", UserA: "user1", UserB: "user2", Difficulty: "Hard", Topic: "Trees", CreatedAt: base.Add(2 * time.Hour)},
	}
	return db.Create(&rows).Error
}

func seedSession(x, y, difficulty, topic string, at time.Time) Session {
	if y < x {
		x, y = y, x
	}
	return Session{
		SessionID:  "S_" + uuid.NewString(),
		PairID:     uuid.NewString(),
		UserA:      x,
		UserB:      y,
		Difficulty: difficulty,
		Topic:      topic,
		CreatedAt:  at.Truncate(time.Millisecond),
	}
}
