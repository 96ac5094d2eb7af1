package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"chessPlay/bots"
	"chessPlay/clock"
	"chessPlay/engine"
	"chessPlay/game"
	"chessPlay/internal/testutil"
	"chessPlay/status"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "chess.db"), zerolog.Nop())
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func blitz(t *testing.T, id string) clock.TimeControl {
	t.Helper()
	tc, ok := clock.LookupTimeControl(id)
	testutil.AssertTrue(t, ok, id)
	return tc
}

func TestCurrentGameRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.LoadCurrent(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertFalse(t, ok, "empty store")

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	want := game.CurrentGame{
		ID:         "g-1",
		Settings:   game.Settings{Tier: bots.Advanced, TimeControl: blitz(t, "blitz-3-2"), PlayerColor: chess.Black},
		FEN:        "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1",
		PGN:        "1. e4 *",
		MoveCount:  1,
		ClockWhite: 178500 * time.Millisecond,
		ClockBlack: 180 * time.Second,
		Active:     chess.Black,
		Status:     status.Snapshot{Status: status.Playing},
		StartedAt:  started,
		SavedAt:    started.Add(2 * time.Second),
	}
	testutil.AssertNoError(t, s.SaveCurrent(ctx, want))

	got, ok, err := s.LoadCurrent(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, ok)
	testutil.AssertEqual(t, got, want)

	want.MoveCount = 2
	want.Active = chess.NoColor
	testutil.AssertNoError(t, s.SaveCurrent(ctx, want), "overwrite")
	got, _, err = s.LoadCurrent(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got, want)

	testutil.AssertNoError(t, s.ClearCurrent(ctx))
	_, ok, err = s.LoadCurrent(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertFalse(t, ok, "cleared")
}

func savedGame(i int, tier bots.Tier, result game.Result, moves int) game.SavedGame {
	ended := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute)
	tc, _ := clock.LookupTimeControl("rapid-10")
	winner := status.WhiteWins
	switch result {
	case game.Loss:
		winner = status.BlackWins
	case game.Draw:
		winner = status.Drawn
	}
	return game.SavedGame{
		ID:        fmt.Sprintf("game-%02d", i),
		Settings:  game.Settings{Tier: tier, TimeControl: tc, PlayerColor: chess.White},
		PGN:       "1. e4 e5 *",
		FEN:       "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2",
		Result:    result,
		Status:    status.Snapshot{Status: status.Resigned, Reason: status.ByResignation, Winner: winner},
		Moves:     moves,
		Duration:  90 * time.Second,
		StartedAt: ended.Add(-90 * time.Second),
		EndedAt:   ended,
	}
}

func TestSaveAndListGames(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := savedGame(1, bots.Easy, game.Win, 30)
	second := savedGame(2, bots.Master, game.Loss, 41)
	testutil.AssertNoError(t, s.SaveGame(ctx, first))
	testutil.AssertNoError(t, s.SaveGame(ctx, second))

	got, err := s.ListGames(ctx, 0)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got, []game.SavedGame{second, first})

	testutil.AssertNoError(t, s.DeleteGame(ctx, first.ID))
	testutil.AssertErrorIs(t, s.DeleteGame(ctx, first.ID), ErrNotFound)
	got, err = s.ListGames(ctx, 10)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), 1)

	testutil.AssertNoError(t, s.ClearHistory(ctx))
	got, err = s.ListGames(ctx, 10)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), 0)
}

func TestSaveGameAssignsID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	g := savedGame(1, bots.Easy, game.Draw, 12)
	g.ID = ""
	testutil.AssertNoError(t, s.SaveGame(ctx, g))
	got, err := s.ListGames(ctx, 1)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), 1)
	testutil.AssertTrue(t, got[0].ID != "")
}

func TestHistoryIsCapped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i := 0; i < MaxGames+5; i++ {
		testutil.AssertNoError(t, s.SaveGame(ctx, savedGame(i, bots.Beginner, game.Win, 10)))
	}
	got, err := s.ListGames(ctx, 0)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), MaxGames)
	testutil.AssertEqual(t, got[0].ID, fmt.Sprintf("game-%02d", MaxGames+4))
	testutil.AssertEqual(t, got[len(got)-1].ID, "game-05")
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	st, err := s.Stats(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, st, Stats{})

	games := []game.SavedGame{
		savedGame(1, bots.Easy, game.Win, 20),
		savedGame(2, bots.Intermediate, game.Loss, 45),
		savedGame(3, bots.Intermediate, game.Draw, 60),
		savedGame(4, bots.Easy, game.Win, 31),
		savedGame(5, bots.Master, game.Loss, 24),
		savedGame(6, bots.Intermediate, game.Win, 40),
	}
	for _, g := range games {
		testutil.AssertNoError(t, s.SaveGame(ctx, g))
	}

	st, err = s.Stats(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, st, Stats{
		Total:       6,
		Wins:        3,
		Losses:      2,
		Draws:       1,
		WinRate:     50,
		AvgMoves:    37,
		FavoriteBot: bots.Intermediate,
		LongestGame: 60,
	})
}

func TestAnalyses(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	var as game.AnalysisStore = s
	testutil.AssertNoError(t, as.SaveAnalysis(ctx, engine.Analysis{
		FEN:     "8/8/8/8/8/8/8/K1k5 w - - 0 1",
		Depth:   18,
		ScoreCP: -35,
		PV:      []string{"a1a2", "c1c2"},
	}))

	got, err := s.ListAnalyses(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), 1)
	a := got[0]
	testutil.AssertTrue(t, a.ID != "")
	a.ID = ""
	testutil.AssertEqual(t, a, SavedAnalysis{
		FEN:        "8/8/8/8/8/8/8/K1k5 w - - 0 1",
		Evaluation: -35,
		BestMove:   "a1a2",
		BestLine:   "a1a2 c1c2",
		Depth:      18,
		CreatedAt:  now,
	})

	testutil.AssertNoError(t, s.UpdateAnalysisNotes(ctx, got[0].ID, "drawn ending"))
	testutil.AssertErrorIs(t, s.UpdateAnalysisNotes(ctx, "missing", "x"), ErrNotFound)
	got, err = s.ListAnalyses(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got[0].Notes, "drawn ending")

	testutil.AssertNoError(t, s.DeleteAnalysis(ctx, got[0].ID))
	got, err = s.ListAnalyses(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), 0)
}

func TestMateAnalysis(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	testutil.AssertNoError(t, s.SaveAnalysis(ctx, engine.Analysis{FEN: "x", Depth: 5, Mate: -3, IsMate: true}))
	got, err := s.ListAnalyses(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, got[0].IsMate)
	testutil.AssertEqual(t, got[0].Mate, -3)
	testutil.AssertEqual(t, got[0].BestMove, "")
}

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.Preferences(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, p, DefaultPreferences())
	settings, err := p.Settings()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, settings, game.DefaultSettings())

	want := Preferences{Tier: bots.Master, TimeControlID: "rapid-10-5", PlayerColor: "b", BoardTheme: "wood"}
	testutil.AssertNoError(t, s.SavePreferences(ctx, want))
	p, err = s.Preferences(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, p, want)

	bad := want
	bad.TimeControlID = "bullet-1"
	testutil.AssertErrorIs(t, s.SavePreferences(ctx, bad), game.ErrInvalidSettings)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chess.db")
	s, err := Open(ctx, path, zerolog.Nop())
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, s.SaveGame(ctx, savedGame(1, bots.Easy, game.Win, 10)))
	testutil.AssertNoError(t, s.Close())

	s, err = Open(ctx, path, zerolog.Nop())
	testutil.AssertNoError(t, err)
	defer s.Close()
	st, err := s.Stats(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, st.Total, 1)
}
