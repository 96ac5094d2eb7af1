// Package engine drives an external UCI engine for position analysis.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/notnil/chess"
	"github.com/notnil/chess/uci"
	"github.com/rs/zerolog"
)

var (
	ErrTerminated   = errors.New("engine: session terminated")
	ErrDisconnected = errors.New("engine: transport disconnected")
	ErrHandshake    = errors.New("engine: handshake timed out")
	ErrLimits       = errors.New("engine: exactly one of depth or movetime must be set")
	ErrInvalidFEN   = errors.New("engine: invalid position")
	ErrNoAnalysis   = errors.New("engine: search produced no evaluation")
)

const (
	// MaxDepth caps requested search depth.
	MaxDepth = 20

	MaxSkillLevel = 20

	DefaultHandshakeTimeout = 10 * time.Second
)

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateSearching
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateSearching:
		return "searching"
	case StateTerminated:
		return "terminated"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Limits bounds a search. Exactly one field must be set.
type Limits struct {
	Depth    int
	MoveTime time.Duration
}

func (l Limits) command() (fmt.Stringer, error) {
	switch {
	case l.Depth > 0 && l.MoveTime <= 0:
		return uci.CmdGo{Depth: min(l.Depth, MaxDepth)}, nil
	case l.MoveTime > 0 && l.Depth <= 0:
		return uci.CmdGo{MoveTime: l.MoveTime}, nil
	}
	return nil, ErrLimits
}

// Analysis is one evaluation update. Scores are from White's point of view.
type Analysis struct {
	Seq     uint64
	FEN     string
	Depth   int
	ScoreCP int
	Mate    int
	IsMate  bool
	PV      []string
}

// SearchResult is the outcome of FindBestMove. None is set when the engine
// had no move or the query was stopped or superseded.
type SearchResult struct {
	Seq    uint64
	Move   string
	Ponder string
	None   bool
	// Last is the final evaluation seen before the result, if any.
	Last *Analysis
}

type Config struct {
	Logger           zerolog.Logger
	HandshakeTimeout time.Duration
}

type query struct {
	seq         uint64
	fen         string
	blackToMove bool
	last        *Analysis
	done        chan outcome
}

type outcome struct {
	result SearchResult
	err    error
}

func (q *query) resolve(res SearchResult, err error) {
	res.Seq = q.seq
	res.Last = q.last
	q.done <- outcome{result: res, err: err}
}

// Session is a single connection to an engine. At most one query is
// outstanding; starting another stops the first.
type Session struct {
	transport        Transport
	logger           zerolog.Logger
	handshakeTimeout time.Duration

	mu        sync.Mutex
	state     State
	seq       uint64
	pending   *query
	stale     int
	observers map[int]func(Analysis)
	nextObs   int
	name      string

	readyOnce sync.Once
	ready     chan struct{}
	readyErr  error
	loopDone  chan struct{}
}

func NewSession(t Transport, cfg Config) *Session {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	s := &Session{
		transport:        t,
		logger:           cfg.Logger,
		handshakeTimeout: cfg.HandshakeTimeout,
		observers:        make(map[int]func(Analysis)),
		ready:            make(chan struct{}),
		loopDone:         make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// Connect creates a session and completes the handshake.
func Connect(ctx context.Context, t Transport, cfg Config) (*Session, error) {
	s := NewSession(t, cfg)
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Start sends the handshake and blocks until the engine answers readyok. On
// timeout the session is terminated and ErrHandshake returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return s.WaitReady(ctx)
	}
	s.state = StateInitializing
	s.mu.Unlock()

	if err := s.send(uci.CmdUCI, uci.CmdIsReady); err != nil {
		s.Terminate()
		return err
	}

	timer := time.NewTimer(s.handshakeTimeout)
	defer timer.Stop()
	select {
	case <-s.ready:
		return s.readyErr
	case <-timer.C:
		s.logger.Error().Dur("timeout", s.handshakeTimeout).Msg("engine handshake timed out")
		s.Terminate()
		return ErrHandshake
	case <-ctx.Done():
		s.Terminate()
		return ctx.Err()
	}
}

// WaitReady blocks until the handshake has finished.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Name is the engine's self-reported name, empty until the handshake.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Observe registers fn for every evaluation update. fn runs on the reader
// goroutine and must not block. The returned func unsubscribes.
func (s *Session) Observe(fn func(Analysis)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// FindBestMove asks the engine for its move in fen. Analysis updates for the
// query are streamed to observers while it runs.
func (s *Session) FindBestMove(ctx context.Context, fen string, limits Limits) (SearchResult, error) {
	q, err := s.begin(ctx, fen, limits)
	if err != nil {
		return SearchResult{}, err
	}
	select {
	case out := <-q.done:
		return out.result, out.err
	case <-ctx.Done():
		s.cancel(q)
		return SearchResult{}, ctx.Err()
	}
}

// Evaluate searches fen to depth and returns the last evaluation the engine
// reported before its best move.
func (s *Session) Evaluate(ctx context.Context, fen string, depth int) (Analysis, error) {
	res, err := s.FindBestMove(ctx, fen, Limits{Depth: depth})
	if err != nil {
		return Analysis{}, err
	}
	if res.Last == nil {
		return Analysis{}, ErrNoAnalysis
	}
	return *res.Last, nil
}

func (s *Session) begin(ctx context.Context, fen string, limits Limits) (*query, error) {
	goCmd, err := limits.command()
	if err != nil {
		return nil, err
	}
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	pos := chess.NewGame(opt).Position()

	if s.State() == StateTerminated {
		return nil, ErrTerminated
	}
	if err := s.WaitReady(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return nil, ErrTerminated
	}
	var superseded *query
	if s.pending != nil {
		superseded = s.pending
		s.stale++
	}
	s.seq++
	q := &query{
		seq:         s.seq,
		fen:         fen,
		blackToMove: pos.Turn() == chess.Black,
		done:        make(chan outcome, 1),
	}
	s.pending = q
	s.state = StateSearching
	// Commands are written under the lock so concurrent queries reach the
	// engine in the order their sequence numbers were assigned.
	var cmds []fmt.Stringer
	if superseded != nil {
		cmds = append(cmds, uci.CmdStop)
	}
	cmds = append(cmds, uci.CmdPosition{Position: pos}, goCmd)
	err = s.send(cmds...)
	s.mu.Unlock()

	if superseded != nil {
		s.logger.Debug().Uint64("seq", superseded.seq).Uint64("by", q.seq).Msg("engine query superseded")
		superseded.resolve(SearchResult{None: true}, nil)
	}
	if err != nil {
		s.fail(err)
		return nil, err
	}
	s.logger.Debug().Uint64("seq", q.seq).Str("fen", fen).Msg("engine query started")
	return q, nil
}

// cancel stops q if it is still the outstanding query.
func (s *Session) cancel(q *query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != q {
		return
	}
	s.pending = nil
	s.stale++
	s.state = StateReady
	_ = s.send(uci.CmdStop)
}

// Stop halts the current search. The pending query resolves with a None
// result and no error.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return ErrTerminated
	}
	q := s.pending
	if q == nil {
		s.mu.Unlock()
		return nil
	}
	s.pending = nil
	s.stale++
	s.state = StateReady
	err := s.send(uci.CmdStop)
	s.mu.Unlock()

	q.resolve(SearchResult{None: true}, nil)
	return err
}

// SetSkillLevel clamps level to 0..20 and forwards it to the engine.
func (s *Session) SetSkillLevel(level int) error {
	level = max(0, min(MaxSkillLevel, level))
	return s.command(uci.CmdSetOption{Name: "Skill Level", Value: strconv.Itoa(level)})
}

// NewGame tells the engine the next position is from a different game.
func (s *Session) NewGame() error {
	return s.command(uci.CmdUCINewGame)
}

func (s *Session) command(cmd fmt.Stringer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return ErrTerminated
	}
	return s.send(cmd)
}

// Terminate sends quit and closes the transport. Later calls on the session
// return ErrTerminated.
func (s *Session) Terminate() error {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return nil
	}
	s.state = StateTerminated
	q := s.pending
	s.pending = nil
	_ = s.send(uci.CmdQuit)
	s.mu.Unlock()

	s.markReady(ErrTerminated)
	if q != nil {
		q.resolve(SearchResult{}, ErrTerminated)
	}
	err := s.transport.Close()
	s.logger.Info().Msg("engine session terminated")
	return err
}

// Done is closed once the transport stops delivering lines.
func (s *Session) Done() <-chan struct{} {
	return s.loopDone
}

// send writes commands in order. Callers hold s.mu.
func (s *Session) send(cmds ...fmt.Stringer) error {
	for _, cmd := range cmds {
		if err := s.transport.Send(cmd.String()); err != nil {
			return fmt.Errorf("%w: %v", ErrDisconnected, err)
		}
	}
	return nil
}

func (s *Session) markReady(err error) {
	s.readyOnce.Do(func() {
		s.readyErr = err
		close(s.ready)
	})
}

func (s *Session) readLoop() {
	defer close(s.loopDone)
	for line := range s.transport.Lines() {
		s.handle(Parse(line))
	}
	s.fail(ErrDisconnected)
}

// fail terminates the session after a transport error.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	s.state = StateTerminated
	q := s.pending
	s.pending = nil
	s.mu.Unlock()

	s.logger.Warn().Err(err).Msg("engine disconnected")
	s.markReady(ErrDisconnected)
	if q != nil {
		q.resolve(SearchResult{}, ErrDisconnected)
	}
	_ = s.transport.Close()
}

func (s *Session) handle(msg Message) {
	switch m := msg.(type) {
	case ReadyOK:
		s.mu.Lock()
		if s.state == StateInitializing {
			s.state = StateReady
		}
		s.mu.Unlock()
		s.markReady(nil)
	case UCIOK:
		s.logger.Debug().Msg("engine speaks uci")
	case ID:
		if m.Key == "name" {
			s.mu.Lock()
			s.name = m.Value
			s.mu.Unlock()
		}
	case Option:
		s.logger.Trace().Str("option", m.Name).Str("type", m.Type).Msg("engine option")
	case Info:
		s.handleInfo(m)
	case BestMove:
		s.handleBestMove(m)
	}
}

// handleInfo folds an info line into the running analysis. Lines may carry
// any subset of depth, score and pv; fields a line omits keep their last
// value. Lines with none of them, such as "info string", are ignored.
func (s *Session) handleInfo(info Info) {
	if info.Depth <= 0 && !info.HasScore && len(info.PV) == 0 {
		return
	}
	s.mu.Lock()
	q := s.pending
	if s.stale > 0 || q == nil {
		s.mu.Unlock()
		return
	}
	var a Analysis
	if q.last != nil {
		a = *q.last
	}
	a.Seq, a.FEN = q.seq, q.fen
	if info.Depth > 0 {
		a.Depth = info.Depth
	}
	if info.HasScore {
		a.ScoreCP, a.Mate, a.IsMate = info.ScoreCP, info.Mate, info.IsMate
		if q.blackToMove {
			a.ScoreCP, a.Mate = -a.ScoreCP, -a.Mate
		}
	}
	if len(info.PV) > 0 {
		a.PV = info.PV
	}
	q.last = &a
	observers := make([]func(Analysis), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(a)
	}
}

func (s *Session) handleBestMove(bm BestMove) {
	s.mu.Lock()
	if s.stale > 0 {
		s.stale--
		s.mu.Unlock()
		s.logger.Debug().Str("move", bm.Move).Msg("discarded stale bestmove")
		return
	}
	q := s.pending
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	if s.state == StateSearching {
		s.state = StateReady
	}
	s.mu.Unlock()

	s.logger.Debug().Uint64("seq", q.seq).Str("move", bm.Move).Msg("engine bestmove")
	if bm.IsNone() {
		q.resolve(SearchResult{None: true}, nil)
		return
	}
	q.resolve(SearchResult{Move: bm.Move, Ponder: bm.Ponder}, nil)
}
