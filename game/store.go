package game

import (
	"context"
	"time"

	"github.com/notnil/chess"

	"chessPlay/engine"
	"chessPlay/status"
)

// CurrentGame is the in-progress game persisted after every move so it can
// be resumed after a restart.
type CurrentGame struct {
	ID         string
	Settings   Settings
	FEN        string
	PGN        string
	MoveCount  int
	ClockWhite time.Duration
	ClockBlack time.Duration
	Active     chess.Color
	Status     status.Snapshot
	StartedAt  time.Time
	SavedAt    time.Time
}

// Result is a finished game from the player's point of view.
type Result string

const (
	Win  Result = "win"
	Loss Result = "loss"
	Draw Result = "draw"
)

// SavedGame is a finished game kept in the history.
type SavedGame struct {
	ID        string
	Settings  Settings
	PGN       string
	FEN       string
	Result    Result
	Status    status.Snapshot
	Moves     int
	Duration  time.Duration
	StartedAt time.Time
	EndedAt   time.Time
}

// Store persists games. Implementations must be safe for concurrent use.
type Store interface {
	SaveCurrent(ctx context.Context, g CurrentGame) error
	// LoadCurrent reports false when no game is in progress.
	LoadCurrent(ctx context.Context) (CurrentGame, bool, error)
	ClearCurrent(ctx context.Context) error
	SaveGame(ctx context.Context, g SavedGame) error
}

// AnalysisStore is implemented by stores that also keep engine evaluations.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, a engine.Analysis) error
}

// Analyzer evaluates positions, normally an engine.Session.
type Analyzer interface {
	Evaluate(ctx context.Context, fen string, depth int) (engine.Analysis, error)
	Stop() error
}
