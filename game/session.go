// Package game runs a single human-versus-bot game: board, bot, clock and
// status, plus optional persistence and engine analysis.
package game

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"chessPlay/bots"
	"chessPlay/clock"
	"chessPlay/engine"
	"chessPlay/rules"
	"chessPlay/status"
)

var (
	ErrNotPlaying   = errors.New("game: no game in progress")
	ErrNoAnalyzer   = errors.New("game: analysis engine not available")
	ErrDrawDeclined = errors.New("game: draw offer declined")
)

// movesBeforeCountdown is how many plies are played before the clocks run,
// so neither side loses time over the first move.
const movesBeforeCountdown = 2

// drawAcceptMargin is how far behind, in centipawns, the bot must be to
// accept a draw offer.
const drawAcceptMargin = 50

type Config struct {
	Logger          zerolog.Logger
	Store           Store
	Analyzer        Analyzer
	SelectorOptions []bots.Option
	ClockOptions    []clock.Option
	Now             func() time.Time
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	ID           string
	Settings     Settings
	FEN          string
	PGN          string
	Turn         chess.Color
	History      []string
	Status       status.Snapshot
	Clock        clock.State
	BotThinking  bool
	LastAnalysis *engine.Analysis
	StartedAt    time.Time
}

// Session owns one game at a time. Its methods are safe for concurrent use;
// bot moves and clock expiry arrive on background goroutines.
type Session struct {
	logger   zerolog.Logger
	store    Store
	analyzer Analyzer
	selOpts  []bots.Option
	now      func() time.Time

	clock  *clock.Clock
	status *status.Machine

	mu             sync.Mutex
	id             string
	settings       Settings
	board          *rules.Board
	bot            bots.ChessBot
	gen            uint64
	startedAt      time.Time
	countdown      bool
	botThinking    bool
	cancelThink    context.CancelFunc
	cancelAnalysis context.CancelFunc
	lastAnalysis   *engine.Analysis
	listeners      []func(Snapshot)
	closed         bool
}

func NewSession(cfg Config) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Session{
		logger:   cfg.Logger,
		store:    cfg.Store,
		analyzer: cfg.Analyzer,
		selOpts:  append([]bots.Option{bots.WithLogger(cfg.Logger)}, cfg.SelectorOptions...),
		now:      cfg.Now,
		status:   status.NewMachine(cfg.Logger),
		settings: DefaultSettings(),
		board:    rules.NewBoard(),
	}
	clockOpts := append([]clock.Option{clock.WithLogger(cfg.Logger), clock.WithNow(cfg.Now)}, cfg.ClockOptions...)
	s.clock = clock.New(s.onTimeout, clockOpts...)
	return s
}

// OnChange registers fn to run after every state change. fn runs without
// the session lock held and may call back into the session.
func (s *Session) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Start begins a new game, discarding any game in progress.
func (s *Session) Start(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.resetLocked()
	s.settings = settings
	s.id = uuid.NewString()
	s.startedAt = s.now()
	s.bot = bots.NewBot(settings.Tier, bots.NewSelector(s.selOpts...))
	s.clock.Start(settings.TimeControl)
	if err := s.status.Start(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.clearCurrent()
	s.persistLocked()
	s.logger.Info().
		Str("game", s.id).
		Str("bot", settings.Tier.String()).
		Str("time_control", settings.TimeControl.ID).
		Str("player", settings.PlayerColor.Name()).
		Msg("game started")
	s.maybeBotMoveLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// Reset abandons the current game and returns to Idle. A pending bot move is
// discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.clearCurrent()
	s.mu.Unlock()
	s.notify()
}

func (s *Session) resetLocked() {
	s.gen++
	s.stopThinkingLocked()
	s.status.Reset()
	s.clock.Reset(s.settings.TimeControl, nil, nil)
	s.board = rules.NewBoard()
	s.countdown = false
	s.lastAnalysis = nil
	s.id = ""
}

// Resign ends the game in the bot's favor.
func (s *Session) Resign() error {
	s.mu.Lock()
	snap, err := s.status.Resign(s.settings.PlayerColor)
	if err != nil {
		s.mu.Unlock()
		return ErrNotPlaying
	}
	s.board.Resign(s.settings.PlayerColor)
	s.finishLocked(snap)
	s.mu.Unlock()
	s.notify()
	return nil
}

// OfferDraw asks the bot to agree to a draw. The bot accepts when its static
// evaluation says it is worse off.
func (s *Session) OfferDraw() error {
	s.mu.Lock()
	if s.status.Status() != status.Playing {
		s.mu.Unlock()
		return ErrNotPlaying
	}
	score := bots.DefaultEvaluator{}.Evaluate(s.board.Position())
	if s.settings.BotColor() == chess.Black {
		score = -score
	}
	if score > -drawAcceptMargin {
		s.mu.Unlock()
		s.logger.Debug().Int("bot_score", score).Msg("draw declined")
		return ErrDrawDeclined
	}
	snap, err := s.status.Agree()
	if err != nil {
		s.mu.Unlock()
		return ErrNotPlaying
	}
	s.finishLocked(snap)
	s.mu.Unlock()
	s.notify()
	return nil
}

// SubmitMove plays the human move from-to. It returns false, changing
// nothing, if the coordinates are malformed, it is not the player's turn or
// the move is illegal. promo may be empty; pawns then promote to a queen.
func (s *Session) SubmitMove(from, to, promo string) bool {
	fromSq, err := rules.ParseSquare(from)
	if err != nil {
		return false
	}
	toSq, err := rules.ParseSquare(to)
	if err != nil {
		return false
	}
	promoPiece, err := rules.ParsePromotion(promo)
	if err != nil {
		return false
	}

	s.mu.Lock()
	if s.status.Status() != status.Playing || s.board.Turn() != s.settings.PlayerColor {
		s.mu.Unlock()
		return false
	}
	m := s.board.Find(fromSq, toSq, promoPiece)
	if m == nil || !s.applyLocked(m) {
		s.mu.Unlock()
		return false
	}
	s.maybeBotMoveLocked()
	s.mu.Unlock()
	s.notify()
	return true
}

// LegalDestinations lists, in sorted order, the squares the piece on sq can
// move to. It is empty unless a game is in progress and the piece belongs to
// the side to move.
func (s *Session) LegalDestinations(sq string) []string {
	from, err := rules.ParseSquare(sq)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Status() != status.Playing {
		return nil
	}
	var dests []string
	seen := make(map[chess.Square]bool)
	for _, m := range s.board.LegalMovesFrom(from) {
		if seen[m.To] {
			continue
		}
		seen[m.To] = true
		dests = append(dests, m.To.String())
	}
	sort.Strings(dests)
	return dests
}

// RequestAnalysis evaluates the current position with the external engine.
// A newer request or CancelAnalysis supersedes it.
func (s *Session) RequestAnalysis(ctx context.Context, depth int) (engine.Analysis, error) {
	if s.analyzer == nil {
		return engine.Analysis{}, ErrNoAnalyzer
	}
	s.mu.Lock()
	if s.cancelAnalysis != nil {
		s.cancelAnalysis()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancelAnalysis = cancel
	fen := s.board.FEN()
	s.mu.Unlock()
	defer cancel()

	a, err := s.analyzer.Evaluate(ctx, fen, depth)
	if err != nil {
		s.logger.Debug().Err(err).Str("fen", fen).Msg("analysis failed")
		return engine.Analysis{}, err
	}

	s.mu.Lock()
	if s.board.FEN() == fen {
		s.lastAnalysis = &a
	}
	s.mu.Unlock()

	if as, ok := s.store.(AnalysisStore); ok {
		if err := as.SaveAnalysis(context.Background(), a); err != nil {
			s.logger.Warn().Err(err).Msg("save analysis")
		}
	}
	s.notify()
	return a, nil
}

// CancelAnalysis stops any running analysis.
func (s *Session) CancelAnalysis() {
	s.mu.Lock()
	cancel := s.cancelAnalysis
	s.cancelAnalysis = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if s.analyzer != nil {
		if err := s.analyzer.Stop(); err != nil {
			s.logger.Debug().Err(err).Msg("stop analysis")
		}
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	history := s.board.History()
	sans := make([]string, len(history))
	for i, m := range history {
		sans[i] = m.SAN()
	}
	var last *engine.Analysis
	if s.lastAnalysis != nil {
		a := *s.lastAnalysis
		last = &a
	}
	return Snapshot{
		ID:           s.id,
		Settings:     s.settings,
		FEN:          s.board.FEN(),
		PGN:          s.board.PGN(),
		Turn:         s.board.Turn(),
		History:      sans,
		Status:       s.status.Snapshot(),
		Clock:        s.clock.State(),
		BotThinking:  s.botThinking,
		LastAnalysis: last,
		StartedAt:    s.startedAt,
	}
}

func (s *Session) Clock() clock.State {
	return s.clock.State()
}

func (s *Session) Status() status.Snapshot {
	return s.status.Snapshot()
}

// History returns the moves played so far.
func (s *Session) History() []*rules.Move {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.History()
}

// Board returns a copy of the current board.
func (s *Session) Board() *rules.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Clone()
}

// Resume reloads the persisted game, if any. Time that passed while the
// program was not running is charged to the side that was on move, but only
// once the countdown had started.
func (s *Session) Resume(ctx context.Context) (bool, error) {
	if s.store == nil {
		return false, nil
	}
	cur, ok, err := s.store.LoadCurrent(ctx)
	if err != nil || !ok {
		return false, err
	}
	if err := cur.Settings.Validate(); err != nil {
		return false, err
	}
	board, err := restoreBoard(cur)
	if err != nil {
		return false, err
	}
	snap := cur.Status
	if !snap.Status.Terminal() {
		snap = status.Snapshot{Status: status.Playing}
	}
	if err := snap.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.resetLocked()
	s.id = cur.ID
	s.settings = cur.Settings
	s.startedAt = cur.StartedAt
	s.board = board
	s.bot = bots.NewBot(cur.Settings.Tier, bots.NewSelector(s.selOpts...))
	_ = s.status.Restore(snap)
	s.countdown = len(board.History()) >= movesBeforeCountdown
	running := s.countdown && snap.Status == status.Playing
	var savedAt time.Time
	if running {
		savedAt = cur.SavedAt
	}
	s.clock.Restore(cur.Settings.TimeControl, cur.ClockWhite, cur.ClockBlack, board.Turn(), savedAt)
	if running {
		s.clock.Resume()
	}
	s.logger.Info().Str("game", cur.ID).Int("moves", len(board.History())).Msg("game resumed")
	s.maybeBotMoveLocked()
	s.mu.Unlock()
	s.notify()
	return true, nil
}

func restoreBoard(cur CurrentGame) (*rules.Board, error) {
	if cur.PGN != "" {
		if b, err := rules.FromPGN(cur.PGN); err == nil && b.FEN() == cur.FEN {
			return b, nil
		}
	}
	if cur.FEN == "" {
		return rules.NewBoard(), nil
	}
	return rules.FromFEN(cur.FEN)
}

// Close pauses the clock, saves the game in progress and cancels any
// background work. The session must not be used afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.gen++
	s.stopThinkingLocked()
	if s.cancelAnalysis != nil {
		s.cancelAnalysis()
		s.cancelAnalysis = nil
	}
	s.clock.Pause()
	if s.status.Status() == status.Playing {
		s.persistLocked()
	}
	return nil
}

// applyLocked plays m and runs the per-move bookkeeping: clock switch,
// countdown start, end-of-game check and persistence.
func (s *Session) applyLocked(m *rules.Move) bool {
	if err := s.board.Apply(m); err != nil {
		s.logger.Warn().Err(err).Msg("rejected move")
		return false
	}
	s.clock.SwitchTurn(s.board.Turn())
	if !s.countdown && len(s.board.History()) >= movesBeforeCountdown {
		s.countdown = true
		s.clock.StartCountdown()
	}

	snap, err := s.status.CheckForEnd(s.board)
	if err != nil {
		return true
	}
	if snap.Status.Terminal() {
		s.finishLocked(snap)
		return true
	}
	s.persistLocked()
	return true
}

func (s *Session) finishLocked(snap status.Snapshot) {
	s.stopThinkingLocked()
	s.clock.Stop()
	if s.store == nil || s.id == "" {
		return
	}
	ended := s.now()
	saved := SavedGame{
		ID:        s.id,
		Settings:  s.settings,
		PGN:       s.board.PGN(),
		FEN:       s.board.FEN(),
		Result:    resultFor(snap.Winner, s.settings.PlayerColor),
		Status:    snap,
		Moves:     len(s.board.History()),
		Duration:  ended.Sub(s.startedAt),
		StartedAt: s.startedAt,
		EndedAt:   ended,
	}
	ctx := context.Background()
	if err := s.store.SaveGame(ctx, saved); err != nil {
		s.logger.Error().Err(err).Str("game", s.id).Msg("save finished game")
	}
	s.clearCurrent()
}

func resultFor(w status.Winner, player chess.Color) Result {
	switch {
	case w == status.Drawn:
		return Draw
	case (w == status.WhiteWins) == (player == chess.White):
		return Win
	}
	return Loss
}

func (s *Session) persistLocked() {
	if s.store == nil || s.id == "" {
		return
	}
	cs := s.clock.State()
	cur := CurrentGame{
		ID:         s.id,
		Settings:   s.settings,
		FEN:        s.board.FEN(),
		PGN:        s.board.PGN(),
		MoveCount:  len(s.board.History()),
		ClockWhite: cs.White,
		ClockBlack: cs.Black,
		Active:     cs.Active,
		Status:     s.status.Snapshot(),
		StartedAt:  s.startedAt,
		SavedAt:    s.now(),
	}
	if err := s.store.SaveCurrent(context.Background(), cur); err != nil {
		s.logger.Error().Err(err).Str("game", s.id).Msg("save current game")
	}
}

func (s *Session) clearCurrent() {
	if s.store == nil {
		return
	}
	if err := s.store.ClearCurrent(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("clear current game")
	}
}

// maybeBotMoveLocked starts the bot thinking when it is on move. The result
// is applied only if the session is still on the same game and position.
func (s *Session) maybeBotMoveLocked() {
	if s.closed || s.bot == nil || s.botThinking {
		return
	}
	if s.status.Status() != status.Playing || s.board.Turn() != s.settings.BotColor() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	results, err := s.bot.Think(ctx, s.board)
	if err != nil {
		cancel()
		s.logger.Warn().Err(err).Msg("bot did not start thinking")
		return
	}
	s.cancelThink = cancel
	s.botThinking = true
	go s.awaitBotMove(s.gen, results)
}

func (s *Session) awaitBotMove(gen uint64, results <-chan bots.Result) {
	res, ok := <-results

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.botThinking = false
	s.cancelThink = nil
	if !ok || res.Move == nil || res.FEN != s.board.FEN() || s.status.Status() != status.Playing {
		s.mu.Unlock()
		s.notify()
		return
	}
	s.applyLocked(res.Move)
	s.logger.Debug().Str("game", s.id).Str("move", res.Move.UCI()).Msg("bot moved")
	s.mu.Unlock()
	s.notify()
}

func (s *Session) stopThinkingLocked() {
	if s.cancelThink != nil {
		s.cancelThink()
		s.cancelThink = nil
	}
	s.botThinking = false
}

// onTimeout runs on the clock's goroutine, possibly while a caller of
// SwitchTurn holds s.mu, so the work is handed off.
func (s *Session) onTimeout(loser chess.Color) {
	go s.handleTimeout(loser)
}

func (s *Session) handleTimeout(loser chess.Color) {
	s.mu.Lock()
	if s.clock.State().Remaining(loser) > 0 {
		s.mu.Unlock()
		return
	}
	snap, err := s.status.Timeout(loser)
	if err != nil {
		s.mu.Unlock()
		return
	}
	s.finishLocked(snap)
	s.mu.Unlock()
	s.notify()
}

func (s *Session) notify() {
	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	var snap Snapshot
	if len(listeners) > 0 {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}
