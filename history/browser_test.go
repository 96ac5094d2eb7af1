package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"chessPlay/bots"
	"chessPlay/clock"
	"chessPlay/game"
	"chessPlay/internal/testutil"
	"chessPlay/status"
	"chessPlay/store"
)

func newTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "history.db"), zerolog.Nop())
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func finished(i int, tier bots.Tier, result game.Result) game.SavedGame {
	ended := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
	tc, _ := clock.LookupTimeControl("blitz-5")
	winner := status.WhiteWins
	if result == game.Loss {
		winner = status.BlackWins
	}
	return game.SavedGame{
		ID:        fmt.Sprintf("g%d", i),
		Settings:  game.Settings{Tier: tier, TimeControl: tc, PlayerColor: chess.White},
		PGN:       "1. e4 *",
		FEN:       "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1",
		Result:    result,
		Status:    status.Snapshot{Status: status.Resigned, Reason: status.ByResignation, Winner: winner},
		Moves:     10 * (i + 1),
		Duration:  time.Minute,
		StartedAt: ended.Add(-time.Minute),
		EndedAt:   ended,
	}
}

func seeded(t *testing.T) (*Browser, *store.SQLite) {
	t.Helper()
	ctx := context.Background()
	db := newTestStore(t)
	testutil.AssertNoError(t, db.SaveGame(ctx, finished(0, bots.Easy, game.Win)))
	testutil.AssertNoError(t, db.SaveGame(ctx, finished(1, bots.Master, game.Loss)))
	for i, move := range []string{"e2e4", "d2d4"} {
		_, err := db.AddAnalysis(ctx, store.SavedAnalysis{
			FEN:        chess.StartingPosition().String(),
			Evaluation: 20 + i,
			BestMove:   move,
			BestLine:   move,
			Depth:      12,
			CreatedAt:  time.Date(2024, 6, 2, 0, i, 0, 0, time.UTC),
		})
		testutil.AssertNoError(t, err)
	}
	b := NewBrowser(db, zerolog.Nop())
	testutil.AssertNoError(t, b.Refresh(ctx))
	return b, db
}

func TestRefreshLoadsEverything(t *testing.T) {
	b, _ := seeded(t)
	testutil.AssertEqual(t, len(b.Games()), 2)
	testutil.AssertEqual(t, b.Games()[0].ID, "g1", "newest first")
	testutil.AssertEqual(t, len(b.Analyses()), 2)
	testutil.AssertEqual(t, b.Analyses()[0].BestMove, "d2d4")
	testutil.AssertEqual(t, b.Stats().Total, 2)
	testutil.AssertEqual(t, b.Stats().WinRate, 50)
	testutil.AssertTrue(t, strings.HasPrefix(StatsLine(b.Stats()), "2 games  1W 1L 0D  50% won"))
}

func TestCursorStaysInRange(t *testing.T) {
	b, _ := seeded(t)
	b.MoveCursor(-3)
	testutil.AssertEqual(t, b.Cursor(), 0)
	b.MoveCursor(10)
	testutil.AssertEqual(t, b.Cursor(), 1)

	b.SwitchTab()
	testutil.AssertEqual(t, b.Tab(), AnalysesTab)
	testutil.AssertEqual(t, b.Cursor(), 0)
	b.SwitchTab()
	testutil.AssertEqual(t, b.Tab(), GamesTab)
}

func TestDeleteSelectedGame(t *testing.T) {
	ctx := context.Background()
	b, db := seeded(t)
	b.MoveCursor(1)
	testutil.AssertNoError(t, b.DeleteSelected(ctx))

	testutil.AssertEqual(t, len(b.Games()), 1)
	testutil.AssertEqual(t, b.Games()[0].ID, "g1")
	testutil.AssertEqual(t, b.Cursor(), 0)
	testutil.AssertEqual(t, b.Stats().Total, 1)
	testutil.AssertEqual(t, b.Stats().Losses, 1)

	stored, err := db.ListGames(ctx, 0)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(stored), 1)
}

func TestDeleteSelectedAnalysis(t *testing.T) {
	ctx := context.Background()
	b, db := seeded(t)
	b.SwitchTab()
	testutil.AssertNoError(t, b.DeleteSelected(ctx))
	testutil.AssertEqual(t, len(b.Analyses()), 1)
	testutil.AssertEqual(t, b.Analyses()[0].BestMove, "e2e4")

	testutil.AssertNoError(t, b.DeleteSelected(ctx))
	testutil.AssertErrorIs(t, b.DeleteSelected(ctx), ErrNothingSelected)

	stored, err := db.ListAnalyses(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(stored), 0)
}

func TestClearGamesKeepsAnalyses(t *testing.T) {
	ctx := context.Background()
	b, db := seeded(t)
	testutil.AssertNoError(t, b.ClearGames(ctx))
	testutil.AssertEqual(t, len(b.Games()), 0)
	testutil.AssertEqual(t, StatsLine(b.Stats()), "No games played yet")

	testutil.AssertNoError(t, b.Refresh(ctx))
	testutil.AssertEqual(t, len(b.Games()), 0)
	testutil.AssertEqual(t, len(b.Analyses()), 2)
	st, err := db.Stats(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, st.Total, 0)
}

func TestEditNotes(t *testing.T) {
	ctx := context.Background()
	b, db := seeded(t)
	testutil.AssertFalse(t, b.BeginEdit(), "games tab has no notes")

	b.SwitchTab()
	b.MoveCursor(1)
	testutil.AssertTrue(t, b.BeginEdit())
	b.Type([]rune("solid\tline "))
	b.Type([]rune("x"))
	b.Backspace()
	testutil.AssertEqual(t, b.Draft(), "solidline ")
	b.MoveCursor(-1)
	testutil.AssertEqual(t, b.Cursor(), 1, "cursor locked while editing")
	testutil.AssertNoError(t, b.CommitEdit(ctx))
	testutil.AssertFalse(t, b.Editing())
	testutil.AssertEqual(t, b.Analyses()[1].Notes, "solidline")

	stored, err := db.ListAnalyses(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, stored[1].Notes, "solidline")
	testutil.AssertTrue(t, strings.HasSuffix(AnalysisLine(stored[1]), "e2e4  solidline"))

	testutil.AssertTrue(t, b.BeginEdit())
	b.Type([]rune("discard me"))
	b.CancelEdit()
	testutil.AssertEqual(t, b.Analyses()[1].Notes, "solidline")
	testutil.AssertErrorIs(t, b.CommitEdit(ctx), ErrNothingSelected)
}

func TestNotesAreCapped(t *testing.T) {
	b, _ := seeded(t)
	b.SwitchTab()
	testutil.AssertTrue(t, b.BeginEdit())
	b.Type([]rune(strings.Repeat("a", MaxNotes+20)))
	testutil.AssertEqual(t, len(b.Draft()), MaxNotes)
}

type failingSource struct {
	Source
}

var errDisk = errors.New("disk gone")

func (failingSource) ListGames(context.Context, int) ([]game.SavedGame, error) {
	return nil, errDisk
}
func (failingSource) Stats(context.Context) (store.Stats, error) { return store.Stats{}, nil }
func (failingSource) ListAnalyses(context.Context) ([]store.SavedAnalysis, error) {
	return nil, nil
}

func TestRefreshError(t *testing.T) {
	b := NewBrowser(failingSource{}, zerolog.Nop())
	testutil.AssertErrorIs(t, b.Refresh(context.Background()), errDisk)
}

func TestGameLine(t *testing.T) {
	line := GameLine(finished(0, bots.Easy, game.Win))
	testutil.AssertTrue(t, strings.Contains(line, "win"), line)
	testutil.AssertTrue(t, strings.Contains(line, bots.Easy.Profile().Name), line)
	testutil.AssertTrue(t, strings.HasSuffix(line, "10 moves  resignation"), line)
}
