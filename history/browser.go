// Package history backs the history screen: finished games with their
// statistics, and saved analyses with editable notes.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chessPlay/game"
	"chessPlay/store"
)

// MaxNotes caps the length of analysis notes, in runes.
const MaxNotes = 500

var ErrNothingSelected = errors.New("history: nothing selected")

// Source is the subset of the store the screen reads and edits.
type Source interface {
	ListGames(ctx context.Context, limit int) ([]game.SavedGame, error)
	DeleteGame(ctx context.Context, id string) error
	ClearHistory(ctx context.Context) error
	Stats(ctx context.Context) (store.Stats, error)
	ListAnalyses(ctx context.Context) ([]store.SavedAnalysis, error)
	UpdateAnalysisNotes(ctx context.Context, id, notes string) error
	DeleteAnalysis(ctx context.Context, id string) error
}

type Tab int

const (
	GamesTab Tab = iota
	AnalysesTab
)

func (t Tab) String() string {
	if t == AnalysesTab {
		return "Analyses"
	}
	return "Games"
}

// Browser holds the lists shown on the history screen and the row under the
// cursor. It is not safe for concurrent use; the front end drives it from
// its update loop.
type Browser struct {
	src    Source
	logger zerolog.Logger

	tab      Tab
	cursor   int
	games    []game.SavedGame
	analyses []store.SavedAnalysis
	stats    store.Stats

	editing bool
	draft   []rune
}

func NewBrowser(src Source, logger zerolog.Logger) *Browser {
	return &Browser{src: src, logger: logger}
}

// Refresh reloads games, statistics and analyses.
func (b *Browser) Refresh(ctx context.Context) error {
	var (
		games    []game.SavedGame
		analyses []store.SavedAnalysis
		stats    store.Stats
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		games, err = b.src.ListGames(ctx, store.MaxGames)
		return err
	})
	g.Go(func() (err error) {
		stats, err = b.src.Stats(ctx)
		return err
	})
	g.Go(func() (err error) {
		analyses, err = b.src.ListAnalyses(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("history: refresh: %w", err)
	}
	b.games, b.analyses, b.stats = games, analyses, stats
	b.clampCursor()
	b.logger.Debug().Int("games", len(games)).Int("analyses", len(analyses)).Msg("history loaded")
	return nil
}

func (b *Browser) Tab() Tab { return b.tab }
func (b *Browser) Cursor() int { return b.cursor }
func (b *Browser) Games() []game.SavedGame { return b.games }
func (b *Browser) Analyses() []store.SavedAnalysis { return b.analyses }
func (b *Browser) Stats() store.Stats { return b.stats }

// SwitchTab flips between games and analyses and resets the cursor.
func (b *Browser) SwitchTab() {
	if b.editing {
		return
	}
	b.tab = 1 - b.tab
	b.cursor = 0
}

// MoveCursor moves the selection by delta rows, clamped to the list.
func (b *Browser) MoveCursor(delta int) {
	if b.editing {
		return
	}
	b.cursor += delta
	b.clampCursor()
}

func (b *Browser) rows() int {
	if b.tab == AnalysesTab {
		return len(b.analyses)
	}
	return len(b.games)
}

func (b *Browser) clampCursor() {
	b.cursor = max(0, min(b.cursor, b.rows()-1))
}

// DeleteSelected removes the row under the cursor from the store and the
// list.
func (b *Browser) DeleteSelected(ctx context.Context) error {
	if b.editing || b.rows() == 0 {
		return ErrNothingSelected
	}
	i := b.cursor
	switch b.tab {
	case GamesTab:
		if err := b.src.DeleteGame(ctx, b.games[i].ID); err != nil {
			return err
		}
		b.games = append(b.games[:i:i], b.games[i+1:]...)
		stats, err := b.src.Stats(ctx)
		if err != nil {
			return err
		}
		b.stats = stats
	case AnalysesTab:
		if err := b.src.DeleteAnalysis(ctx, b.analyses[i].ID); err != nil {
			return err
		}
		b.analyses = append(b.analyses[:i:i], b.analyses[i+1:]...)
	}
	b.clampCursor()
	return nil
}

// ClearGames drops every finished game. Analyses are kept.
func (b *Browser) ClearGames(ctx context.Context) error {
	if err := b.src.ClearHistory(ctx); err != nil {
		return err
	}
	b.games = nil
	b.stats = store.Stats{}
	b.clampCursor()
	return nil
}

// BeginEdit starts editing the notes of the selected analysis.
func (b *Browser) BeginEdit() bool {
	if b.tab != AnalysesTab || len(b.analyses) == 0 {
		return false
	}
	b.editing = true
	b.draft = []rune(b.analyses[b.cursor].Notes)
	return true
}

func (b *Browser) Editing() bool { return b.editing }

func (b *Browser) Draft() string { return string(b.draft) }

// Type appends input to the draft, dropping control characters and anything
// past MaxNotes.
func (b *Browser) Type(input []rune) {
	if !b.editing {
		return
	}
	for _, r := range input {
		if len(b.draft) >= MaxNotes {
			return
		}
		if r < ' ' || r == utf8.RuneError {
			continue
		}
		b.draft = append(b.draft, r)
	}
}

func (b *Browser) Backspace() {
	if b.editing && len(b.draft) > 0 {
		b.draft = b.draft[:len(b.draft)-1]
	}
}

func (b *Browser) CancelEdit() {
	b.editing = false
	b.draft = nil
}

// CommitEdit saves the draft as the selected analysis' notes.
func (b *Browser) CommitEdit(ctx context.Context) error {
	if !b.editing {
		return ErrNothingSelected
	}
	notes := strings.TrimSpace(string(b.draft))
	a := &b.analyses[b.cursor]
	if err := b.src.UpdateAnalysisNotes(ctx, a.ID, notes); err != nil {
		return err
	}
	a.Notes = notes
	b.CancelEdit()
	return nil
}

// GameLine renders one finished game as a list row.
func GameLine(g game.SavedGame) string {
	return fmt.Sprintf("%s  %-4s vs %-12s %-10s %3d moves  %s",
		g.EndedAt.Local().Format("Jan 02 15:04"), g.Result, g.Settings.Tier.Profile().Name,
		g.Settings.TimeControl.Name, g.Moves, g.Status.Reason)
}

// AnalysisLine renders one saved analysis as a list row.
func AnalysisLine(a store.SavedAnalysis) string {
	score := fmt.Sprintf("%+.2f", float64(a.Evaluation)/100)
	if a.IsMate {
		score = fmt.Sprintf("M%d", a.Mate)
	}
	line := fmt.Sprintf("%s  %-6s d%-2d %s", a.CreatedAt.Local().Format("Jan 02 15:04"), score, a.Depth, a.BestMove)
	if a.Notes != "" {
		line += "  " + a.Notes
	}
	return line
}

// StatsLine summarizes the history in one row.
func StatsLine(s store.Stats) string {
	if s.Total == 0 {
		return "No games played yet"
	}
	return fmt.Sprintf("%d games  %dW %dL %dD  %d%% won  avg %d moves  longest %d  favorite %s",
		s.Total, s.Wins, s.Losses, s.Draws, s.WinRate, s.AvgMoves, s.LongestGame, s.FavoriteBot.Profile().Name)
}
