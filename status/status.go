// Package status tracks whether a game is running and how it ended.
package status

import (
	"errors"
	"fmt"
	"sync"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"
)

// ErrFinished is returned by transitions attempted after the game ended.
var ErrFinished = errors.New("status: game already finished")

// ErrNotStarted is returned by transitions that need a game in progress.
var ErrNotStarted = errors.New("status: game not started")

// ErrInvalidSnapshot is returned by Restore for an inconsistent state.
var ErrInvalidSnapshot = errors.New("status: invalid snapshot")

type Status int

const (
	Idle Status = iota
	Playing
	Checkmate
	Stalemate
	Draw
	Timeout
	Resigned
)

var statusNames = [...]string{
	Idle:      "idle",
	Playing:   "playing",
	Checkmate: "checkmate",
	Stalemate: "stalemate",
	Draw:      "draw",
	Timeout:   "timeout",
	Resigned:  "resigned",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Terminal reports whether s ends the game.
func (s Status) Terminal() bool {
	return s != Idle && s != Playing
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if name == s {
			return Status(i), nil
		}
	}
	return Idle, fmt.Errorf("unknown status %q", s)
}

type Reason int

const (
	NoReason Reason = iota
	ByCheckmate
	ByTimeout
	ByResignation
	ByStalemate
	ByInsufficientMaterial
	ByFiftyMoveRule
	ByThreefoldRepetition
	ByAgreement
)

var reasonNames = [...]string{
	NoReason:               "",
	ByCheckmate:            "checkmate",
	ByTimeout:              "timeout",
	ByResignation:          "resignation",
	ByStalemate:            "stalemate",
	ByInsufficientMaterial: "insufficient_material",
	ByFiftyMoveRule:        "fifty_move_rule",
	ByThreefoldRepetition:  "threefold_repetition",
	ByAgreement:            "agreement",
}

func (r Reason) String() string {
	if r >= 0 && int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

func ParseReason(s string) (Reason, error) {
	for i, name := range reasonNames {
		if name == s {
			return Reason(i), nil
		}
	}
	return NoReason, fmt.Errorf("unknown termination reason %q", s)
}

// Winner is a side, a draw, or nobody yet.
type Winner int

const (
	NoWinner Winner = iota
	WhiteWins
	BlackWins
	Drawn
)

func winnerOf(c chess.Color) Winner {
	if c == chess.White {
		return WhiteWins
	}
	return BlackWins
}

func (w Winner) String() string {
	switch w {
	case WhiteWins:
		return "white"
	case BlackWins:
		return "black"
	case Drawn:
		return "draw"
	}
	return ""
}

// Result renders w as a PGN result token.
func (w Winner) Result() string {
	switch w {
	case WhiteWins:
		return "1-0"
	case BlackWins:
		return "0-1"
	case Drawn:
		return "1/2-1/2"
	}
	return "*"
}

func ParseWinner(s string) Winner {
	switch s {
	case "white":
		return WhiteWins
	case "black":
		return BlackWins
	case "draw":
		return Drawn
	}
	return NoWinner
}

// Board is what CheckForEnd needs from the rules library, queried after a
// move was applied.
type Board interface {
	Turn() chess.Color
	IsCheckmate() bool
	IsStalemate() bool
	IsInsufficientMaterial() bool
	IsThreefoldRepetition() bool
	IsDraw() bool
}

// Snapshot is a read-only copy of the machine. Reason is NoReason and
// Winner is NoWinner unless Status is terminal.
type Snapshot struct {
	Status Status
	Reason Reason
	Winner Winner
}

// Machine is safe for concurrent use.
type Machine struct {
	mu     sync.Mutex
	cur    Snapshot
	logger zerolog.Logger
}

func NewMachine(logger zerolog.Logger) *Machine {
	return &Machine{logger: logger}
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

func (m *Machine) Status() Status {
	return m.Snapshot().Status
}

// Start moves an idle machine to Playing.
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.cur.Status.Terminal():
		return ErrFinished
	case m.cur.Status == Playing:
		return nil
	}
	m.cur = Snapshot{Status: Playing}
	return nil
}

// Reset returns to Idle from any state.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur = Snapshot{}
}

// CheckForEnd inspects b after a move. The first matching condition wins:
// checkmate, stalemate, insufficient material, threefold repetition, then
// any other draw.
func (m *Machine) CheckForEnd(b Board) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.playing(); err != nil {
		return m.cur, err
	}

	switch {
	case b.IsCheckmate():
		m.finish(Checkmate, ByCheckmate, winnerOf(b.Turn().Other()))
	case b.IsStalemate():
		m.finish(Stalemate, ByStalemate, Drawn)
	case b.IsInsufficientMaterial():
		m.finish(Draw, ByInsufficientMaterial, Drawn)
	case b.IsThreefoldRepetition():
		m.finish(Draw, ByThreefoldRepetition, Drawn)
	case b.IsDraw():
		m.finish(Draw, ByFiftyMoveRule, Drawn)
	}
	return m.cur, nil
}

// Timeout records that loser ran out of time.
func (m *Machine) Timeout(loser chess.Color) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.playing(); err != nil {
		return m.cur, err
	}
	m.finish(Timeout, ByTimeout, winnerOf(loser.Other()))
	return m.cur, nil
}

// Resign records that the given side resigned.
func (m *Machine) Resign(c chess.Color) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.playing(); err != nil {
		return m.cur, err
	}
	m.finish(Resigned, ByResignation, winnerOf(c.Other()))
	return m.cur, nil
}

// Agree ends the game as a draw by agreement.
func (m *Machine) Agree() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.playing(); err != nil {
		return m.cur, err
	}
	m.finish(Draw, ByAgreement, Drawn)
	return m.cur, nil
}

// Validate checks that a terminal status carries a reason and a winner.
func (s Snapshot) Validate() error {
	if s.Status.Terminal() && (s.Reason == NoReason || s.Winner == NoWinner) {
		return fmt.Errorf("%w: %s without reason or winner", ErrInvalidSnapshot, s.Status)
	}
	return nil
}

// Restore loads a persisted state. Reason and winner are dropped for a game
// still in progress.
func (m *Machine) Restore(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !s.Status.Terminal() {
		s.Reason, s.Winner = NoReason, NoWinner
	}
	m.cur = s
	return nil
}

func (m *Machine) playing() error {
	switch {
	case m.cur.Status.Terminal():
		return ErrFinished
	case m.cur.Status != Playing:
		return ErrNotStarted
	}
	return nil
}

func (m *Machine) finish(s Status, r Reason, w Winner) {
	m.cur = Snapshot{Status: s, Reason: r, Winner: w}
	m.logger.Info().
		Str("status", s.String()).
		Str("reason", r.String()).
		Str("winner", w.String()).
		Msg("game over")
}
