// Package store keeps games, analyses and preferences in a local SQLite
// database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/notnil/chess"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"chessPlay/bots"
	"chessPlay/clock"
	"chessPlay/engine"
	"chessPlay/game"
	"chessPlay/status"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

const (
	// MaxGames is how many finished games are kept; older ones are dropped.
	MaxGames = 50
	// MaxAnalyses is how many saved analyses are kept.
	MaxAnalyses = 100
)

// --------- Data models ---------

// SavedAnalysis is an engine evaluation kept for later review.
type SavedAnalysis struct {
	ID         string
	FEN        string
	Evaluation int
	Mate       int
	IsMate     bool
	BestMove   string
	BestLine   string
	Depth      int
	Notes      string
	CreatedAt  time.Time
}

// Preferences are the defaults offered for the next game.
type Preferences struct {
	Tier          bots.Tier
	TimeControlID string
	PlayerColor   string
	BoardTheme    string
	SoundEnabled  bool
}

func DefaultPreferences() Preferences {
	d := game.DefaultSettings()
	return Preferences{
		Tier:          d.Tier,
		TimeControlID: d.TimeControl.ID,
		PlayerColor:   d.PlayerColor.String(),
		BoardTheme:    "modern",
		SoundEnabled:  true,
	}
}

// Settings converts the preferences into game settings.
func (p Preferences) Settings() (game.Settings, error) {
	tc, ok := clock.LookupTimeControl(p.TimeControlID)
	if !ok {
		return game.Settings{}, fmt.Errorf("%w: time control %q", game.ErrInvalidSettings, p.TimeControlID)
	}
	color, err := game.ParseColor(p.PlayerColor)
	if err != nil {
		return game.Settings{}, err
	}
	s := game.Settings{Tier: p.Tier, TimeControl: tc, PlayerColor: color}
	return s, s.Validate()
}

// Stats summarizes the stored history from the player's side.
type Stats struct {
	Total       int
	Wins        int
	Losses      int
	Draws       int
	WinRate     int // percent, rounded
	AvgMoves    int
	FavoriteBot bots.Tier
	LongestGame int
}

// --------- Store ---------

type SQLite struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens or creates the database at path and runs migrations.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
	s := &SQLite{db: db, logger: logger, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	logger.Debug().Str("path", path).Msg("store opened")
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// --------- Migrations ---------

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		// Single-row table holding the game in progress.
		`CREATE TABLE IF NOT EXISTS current_game (
			slot INTEGER PRIMARY KEY CHECK (slot = 1),
			id TEXT NOT NULL,
			tier TEXT NOT NULL,
			time_control TEXT NOT NULL,
			player_color TEXT NOT NULL,
			fen TEXT NOT NULL,
			pgn TEXT NOT NULL,
			move_count INTEGER NOT NULL,
			clock_white_ms INTEGER NOT NULL,
			clock_black_ms INTEGER NOT NULL,
			active TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL,
			winner TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			saved_at INTEGER NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			tier TEXT NOT NULL,
			time_control TEXT NOT NULL,
			player_color TEXT NOT NULL,
			pgn TEXT NOT NULL,
			fen TEXT NOT NULL,
			result TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL,
			winner TEXT NOT NULL,
			moves INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_games_ended ON games(ended_at DESC);`,

		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			fen TEXT NOT NULL,
			evaluation INTEGER NOT NULL,
			mate INTEGER NOT NULL,
			is_mate INTEGER NOT NULL,
			best_move TEXT NOT NULL,
			best_line TEXT NOT NULL,
			depth INTEGER NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at DESC);`,

		`CREATE TABLE IF NOT EXISTS preferences (
			slot INTEGER PRIMARY KEY CHECK (slot = 1),
			tier TEXT NOT NULL,
			time_control TEXT NOT NULL,
			player_color TEXT NOT NULL,
			board_theme TEXT NOT NULL,
			sound_enabled INTEGER NOT NULL
		);`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// --------- Current game ---------

func (s *SQLite) SaveCurrent(ctx context.Context, g game.CurrentGame) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO current_game(slot, id, tier, time_control, player_color, fen, pgn, move_count,
			clock_white_ms, clock_black_ms, active, status, reason, winner, started_at, saved_at)
		VALUES(1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			id=excluded.id, tier=excluded.tier, time_control=excluded.time_control,
			player_color=excluded.player_color, fen=excluded.fen, pgn=excluded.pgn,
			move_count=excluded.move_count, clock_white_ms=excluded.clock_white_ms,
			clock_black_ms=excluded.clock_black_ms, active=excluded.active, status=excluded.status,
			reason=excluded.reason, winner=excluded.winner, started_at=excluded.started_at,
			saved_at=excluded.saved_at`,
		g.ID, g.Settings.Tier.String(), g.Settings.TimeControl.ID, g.Settings.PlayerColor.String(),
		g.FEN, g.PGN, g.MoveCount,
		g.ClockWhite.Milliseconds(), g.ClockBlack.Milliseconds(), encodeColor(g.Active),
		g.Status.Status.String(), g.Status.Reason.String(), g.Status.Winner.String(),
		g.StartedAt.UnixMilli(), g.SavedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: save current game: %w", err)
	}
	return nil
}

func (s *SQLite) LoadCurrent(ctx context.Context) (game.CurrentGame, bool, error) {
	var (
		g                                  game.CurrentGame
		tier, tc, color, active            string
		st, reason, winner                 string
		whiteMS, blackMS, started, savedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tier, time_control, player_color, fen, pgn, move_count, clock_white_ms,
		       clock_black_ms, active, status, reason, winner, started_at, saved_at
		FROM current_game WHERE slot=1`).
		Scan(&g.ID, &tier, &tc, &color, &g.FEN, &g.PGN, &g.MoveCount, &whiteMS, &blackMS,
			&active, &st, &reason, &winner, &started, &savedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return game.CurrentGame{}, false, nil
	case err != nil:
		return game.CurrentGame{}, false, fmt.Errorf("store: load current game: %w", err)
	}

	if g.Settings, err = decodeSettings(tier, tc, color); err != nil {
		return game.CurrentGame{}, false, err
	}
	if g.Status, err = decodeStatus(st, reason, winner); err != nil {
		return game.CurrentGame{}, false, err
	}
	if active != "" {
		if g.Active, err = game.ParseColor(active); err != nil {
			return game.CurrentGame{}, false, err
		}
	}
	g.ClockWhite = time.Duration(whiteMS) * time.Millisecond
	g.ClockBlack = time.Duration(blackMS) * time.Millisecond
	g.StartedAt = time.UnixMilli(started).UTC()
	g.SavedAt = time.UnixMilli(savedAt).UTC()
	return g, true, nil
}

func (s *SQLite) ClearCurrent(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM current_game`); err != nil {
		return fmt.Errorf("store: clear current game: %w", err)
	}
	return nil
}

// --------- History ---------

// SaveGame adds a finished game and drops the oldest beyond MaxGames. An
// empty ID gets a fresh one.
func (s *SQLite) SaveGame(ctx context.Context, g game.SavedGame) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO games(id, tier, time_control, player_color, pgn, fen, result, status,
			reason, winner, moves, duration_ms, started_at, ended_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Settings.Tier.String(), g.Settings.TimeControl.ID, g.Settings.PlayerColor.String(),
		g.PGN, g.FEN, string(g.Result),
		g.Status.Status.String(), g.Status.Reason.String(), g.Status.Winner.String(),
		g.Moves, g.Duration.Milliseconds(), g.StartedAt.UnixMilli(), g.EndedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: save game: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM games WHERE id NOT IN (
			SELECT id FROM games ORDER BY ended_at DESC, rowid DESC LIMIT ?)`, MaxGames)
	if err != nil {
		return fmt.Errorf("store: trim games: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug().Str("game", g.ID).Str("result", string(g.Result)).Msg("game saved")
	return nil
}

// ListGames returns finished games, newest first.
func (s *SQLite) ListGames(ctx context.Context, limit int) ([]game.SavedGame, error) {
	if limit <= 0 || limit > MaxGames {
		limit = MaxGames
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tier, time_control, player_color, pgn, fen, result, status, reason, winner,
		       moves, duration_ms, started_at, ended_at
		FROM games ORDER BY ended_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list games: %w", err)
	}
	defer rows.Close()

	var out []game.SavedGame
	for rows.Next() {
		var (
			g                          game.SavedGame
			tier, tc, color, result    string
			st, reason, winner         string
			durationMS, started, ended int64
		)
		if err := rows.Scan(&g.ID, &tier, &tc, &color, &g.PGN, &g.FEN, &result, &st, &reason,
			&winner, &g.Moves, &durationMS, &started, &ended); err != nil {
			return nil, err
		}
		if g.Settings, err = decodeSettings(tier, tc, color); err != nil {
			return nil, err
		}
		if g.Status, err = decodeStatus(st, reason, winner); err != nil {
			return nil, err
		}
		g.Result = game.Result(result)
		g.Duration = time.Duration(durationMS) * time.Millisecond
		g.StartedAt = time.UnixMilli(started).UTC()
		g.EndedAt = time.UnixMilli(ended).UTC()
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteGame(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("store: delete game: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: game %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLite) ClearHistory(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM games`)
	return err
}

// Stats aggregates the stored history. The favorite bot is the most played
// tier; ties go to the weaker tier.
func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var totalMoves int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(result='win'), 0),
		       COALESCE(SUM(result='loss'), 0),
		       COALESCE(SUM(result='draw'), 0),
		       COALESCE(SUM(moves), 0),
		       COALESCE(MAX(moves), 0)
		FROM games`).
		Scan(&st.Total, &st.Wins, &st.Losses, &st.Draws, &totalMoves, &st.LongestGame)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	if st.Total == 0 {
		return st, nil
	}
	st.WinRate = int(math.Round(float64(st.Wins) / float64(st.Total) * 100))
	st.AvgMoves = int(math.Round(float64(totalMoves) / float64(st.Total)))

	rows, err := s.db.QueryContext(ctx, `SELECT tier, COUNT(*) FROM games GROUP BY tier`)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	defer rows.Close()
	best := 0
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return Stats{}, err
		}
		tier, err := bots.ParseTier(name)
		if err != nil {
			continue
		}
		if n > best || (n == best && tier < st.FavoriteBot) {
			best, st.FavoriteBot = n, tier
		}
	}
	return st, rows.Err()
}

// --------- Analyses ---------

// SaveAnalysis records an engine evaluation. It satisfies
// game.AnalysisStore.
func (s *SQLite) SaveAnalysis(ctx context.Context, a engine.Analysis) error {
	sa := SavedAnalysis{
		FEN:        a.FEN,
		Evaluation: a.ScoreCP,
		Mate:       a.Mate,
		IsMate:     a.IsMate,
		BestLine:   strings.Join(a.PV, " "),
		Depth:      a.Depth,
	}
	if len(a.PV) > 0 {
		sa.BestMove = a.PV[0]
	}
	_, err := s.AddAnalysis(ctx, sa)
	return err
}

// AddAnalysis stores sa and drops the oldest beyond MaxAnalyses.
func (s *SQLite) AddAnalysis(ctx context.Context, sa SavedAnalysis) (SavedAnalysis, error) {
	if sa.ID == "" {
		sa.ID = uuid.NewString()
	}
	if sa.CreatedAt.IsZero() {
		sa.CreatedAt = s.now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SavedAnalysis{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analyses(id, fen, evaluation, mate, is_mate, best_move, best_line, depth, notes, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sa.ID, sa.FEN, sa.Evaluation, sa.Mate, sa.IsMate, sa.BestMove, sa.BestLine, sa.Depth,
		sa.Notes, sa.CreatedAt.UnixMilli())
	if err != nil {
		return SavedAnalysis{}, fmt.Errorf("store: save analysis: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM analyses WHERE id NOT IN (
			SELECT id FROM analyses ORDER BY created_at DESC, rowid DESC LIMIT ?)`, MaxAnalyses)
	if err != nil {
		return SavedAnalysis{}, fmt.Errorf("store: trim analyses: %w", err)
	}
	return sa, tx.Commit()
}

// ListAnalyses returns saved analyses, newest first.
func (s *SQLite) ListAnalyses(ctx context.Context) ([]SavedAnalysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fen, evaluation, mate, is_mate, best_move, best_line, depth, notes, created_at
		FROM analyses ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list analyses: %w", err)
	}
	defer rows.Close()

	var out []SavedAnalysis
	for rows.Next() {
		var sa SavedAnalysis
		var created int64
		if err := rows.Scan(&sa.ID, &sa.FEN, &sa.Evaluation, &sa.Mate, &sa.IsMate, &sa.BestMove,
			&sa.BestLine, &sa.Depth, &sa.Notes, &created); err != nil {
			return nil, err
		}
		sa.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, sa)
	}
	return out, rows.Err()
}

func (s *SQLite) UpdateAnalysisNotes(ctx context.Context, id, notes string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE analyses SET notes=? WHERE id=?`, notes, id)
	if err != nil {
		return fmt.Errorf("store: update notes: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: analysis %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLite) DeleteAnalysis(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE id=?`, id)
	return err
}

// --------- Preferences ---------

// Preferences returns the stored preferences, or the defaults when none were
// saved.
func (s *SQLite) Preferences(ctx context.Context) (Preferences, error) {
	var p Preferences
	var tier string
	err := s.db.QueryRowContext(ctx, `
		SELECT tier, time_control, player_color, board_theme, sound_enabled
		FROM preferences WHERE slot=1`).
		Scan(&tier, &p.TimeControlID, &p.PlayerColor, &p.BoardTheme, &p.SoundEnabled)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return DefaultPreferences(), nil
	case err != nil:
		return Preferences{}, fmt.Errorf("store: load preferences: %w", err)
	}
	if p.Tier, err = bots.ParseTier(tier); err != nil {
		return Preferences{}, err
	}
	return p, nil
}

func (s *SQLite) SavePreferences(ctx context.Context, p Preferences) error {
	if _, err := p.Settings(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences(slot, tier, time_control, player_color, board_theme, sound_enabled)
		VALUES(1, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			tier=excluded.tier, time_control=excluded.time_control, player_color=excluded.player_color,
			board_theme=excluded.board_theme, sound_enabled=excluded.sound_enabled`,
		p.Tier.String(), p.TimeControlID, p.PlayerColor, p.BoardTheme, p.SoundEnabled)
	if err != nil {
		return fmt.Errorf("store: save preferences: %w", err)
	}
	return nil
}

// --------- Encoding ---------

func encodeColor(c chess.Color) string {
	if c == chess.NoColor {
		return ""
	}
	return c.String()
}

func decodeSettings(tier, tc, color string) (game.Settings, error) {
	t, err := bots.ParseTier(tier)
	if err != nil {
		return game.Settings{}, fmt.Errorf("%w: %v", game.ErrInvalidSettings, err)
	}
	control, ok := clock.LookupTimeControl(tc)
	if !ok {
		return game.Settings{}, fmt.Errorf("%w: time control %q", game.ErrInvalidSettings, tc)
	}
	c, err := game.ParseColor(color)
	if err != nil {
		return game.Settings{}, err
	}
	return game.Settings{Tier: t, TimeControl: control, PlayerColor: c}, nil
}

func decodeStatus(st, reason, winner string) (status.Snapshot, error) {
	s, err := status.ParseStatus(st)
	if err != nil {
		return status.Snapshot{}, err
	}
	r, err := status.ParseReason(reason)
	if err != nil {
		return status.Snapshot{}, err
	}
	return status.Snapshot{Status: s, Reason: r, Winner: status.ParseWinner(winner)}, nil
}
