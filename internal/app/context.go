package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/peer-match/internal/match"
	"github.com/oggyb/peer-match/internal/repository"
)

// AppContext holds shared dependencies (engine, history, logger, etc.)
type AppContext struct {
	DB       *gorm.DB
	Engine   *match.Engine
	Sessions *repository.SessionRepository
	Logger   *slog.Logger
}

// New creates a new AppContext. Sessions is derived from db; a nil db leaves
// the history endpoints disabled.
func New(db *gorm.DB, engine *match.Engine, logger *slog.Logger) *AppContext {
	appCtx := &AppContext{
		DB:     db,
		Engine: engine,
		Logger: logger,
	}
	if db != nil {
		appCtx.Sessions = repository.NewSessionRepository(db)
	}
	return appCtx
}
