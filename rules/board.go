package rules

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

const (
	halfMoveClockForFiftyMoveRule = 100
	repetitionsForThreefold       = 3
)

// Board is the game record the rest of the module plays on. It wraps a
// notnil/chess game and adds undo plus the end-of-game queries used by the
// status machine.
type Board struct {
	game *chess.Game
	undo []*chess.Game
}

// NewBoard returns a board set to the standard starting position.
func NewBoard() *Board {
	return &Board{game: chess.NewGame()}
}

// FromFEN returns a board set to the given position.
func FromFEN(fen string) (*Board, error) {
	opt, err := chess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return &Board{game: chess.NewGame(opt)}, nil
}

// FromPGN replays a game record.
func FromPGN(pgn string) (*Board, error) {
	opt, err := chess.PGN(strings.NewReader(pgn))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPGN, err)
	}
	return &Board{game: chess.NewGame(opt)}, nil
}

// ValidateFEN checks a FEN string without keeping the result.
func ValidateFEN(fen string) error {
	_, err := FromFEN(fen)
	return err
}

// Clone returns an independent copy. The undo stack is not copied.
func (b *Board) Clone() *Board {
	return &Board{game: b.game.Clone()}
}

func (b *Board) Position() *chess.Position {
	return b.game.Position()
}

func (b *Board) Turn() chess.Color {
	return b.game.Position().Turn()
}

func (b *Board) FEN() string {
	return b.game.Position().String()
}

// PGN returns the move history as a PGN document.
func (b *Board) PGN() string {
	return b.game.String()
}

// LegalMoves lists every legal move for the side to move.
func (b *Board) LegalMoves() []*Move {
	pos := b.game.Position()
	raw := b.game.ValidMoves()
	moves := make([]*Move, 0, len(raw))
	for _, m := range raw {
		moves = append(moves, newMove(pos, m))
	}
	return moves
}

// LegalMovesFrom lists the legal moves starting on sq.
func (b *Board) LegalMovesFrom(sq chess.Square) []*Move {
	var moves []*Move
	for _, m := range b.LegalMoves() {
		if m.From == sq {
			moves = append(moves, m)
		}
	}
	return moves
}

// Find returns the legal move matching the coordinates or nil. A pawn move
// to the last rank without an explicit promotion promotes to a queen.
func (b *Board) Find(from, to chess.Square, promo chess.PieceType) *Move {
	var fallback *Move
	for _, m := range b.LegalMovesFrom(from) {
		if m.To != to {
			continue
		}
		if m.Promotion == promo {
			return m
		}
		if promo == chess.NoPieceType && m.Promotion == chess.Queen {
			fallback = m
		}
	}
	return fallback
}

// FindUCI resolves a coordinate move string such as "e7e8q".
func (b *Board) FindUCI(s string) *Move {
	if len(s) < 4 {
		return nil
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return nil
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return nil
	}
	promo, err := ParsePromotion(s[4:])
	if err != nil {
		return nil
	}
	return b.Find(from, to, promo)
}

// Apply plays m. The move must be legal in the current position.
func (b *Board) Apply(m *Move) error {
	if m == nil {
		return ErrIllegalMove
	}
	var legal *chess.Move
	for _, v := range b.game.ValidMoves() {
		if v.S1() == m.From && v.S2() == m.To && v.Promo() == m.Promotion {
			legal = v
			break
		}
	}
	if legal == nil {
		return fmt.Errorf("%w: %s", ErrIllegalMove, m.UCI())
	}
	prev := b.game.Clone()
	if err := b.game.Move(legal); err != nil {
		return fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	b.undo = append(b.undo, prev)
	return nil
}

// Undo takes back the last move applied through Apply.
func (b *Board) Undo() bool {
	if len(b.undo) == 0 {
		return false
	}
	b.game = b.undo[len(b.undo)-1]
	b.undo = b.undo[:len(b.undo)-1]
	return true
}

// History returns the moves played so far.
func (b *Board) History() []*Move {
	moves := b.game.Moves()
	positions := b.game.Positions()
	history := make([]*Move, 0, len(moves))
	for i, m := range moves {
		history = append(history, newMove(positions[i], m))
	}
	return history
}

// Resign records a resignation in the underlying game so that the PGN
// result tag is filled in.
func (b *Board) Resign(color chess.Color) {
	b.game.Resign(color)
}

// Outcome returns the PGN result string: "1-0", "0-1", "1/2-1/2" or "*".
func (b *Board) Outcome() string {
	return b.game.Outcome().String()
}

func (b *Board) IsCheckmate() bool {
	return b.game.Position().Status() == chess.Checkmate
}

func (b *Board) IsStalemate() bool {
	return b.game.Position().Status() == chess.Stalemate
}

func (b *Board) IsInsufficientMaterial() bool {
	return b.game.Method() == chess.InsufficientMaterial ||
		InsufficientMaterial(b.game.Position().Board())
}

func (b *Board) IsThreefoldRepetition() bool {
	if b.game.Method() == chess.FivefoldRepetition {
		return true
	}
	return hasMethod(b.game.EligibleDraws(), chess.ThreefoldRepetition)
}

// IsDraw covers every drawn state, including the fifty and seventy-five
// move rules.
func (b *Board) IsDraw() bool {
	if b.IsStalemate() || b.IsInsufficientMaterial() || b.IsThreefoldRepetition() {
		return true
	}
	if b.game.Method() == chess.SeventyFiveMoveRule {
		return true
	}
	return hasMethod(b.game.EligibleDraws(), chess.FiftyMoveRule)
}

// IsGameOver reports checkmate or any draw.
func (b *Board) IsGameOver() bool {
	return b.IsCheckmate() || b.IsDraw()
}

// Node returns the root search node for the current position, linked to
// the positions already played so repetitions are detected.
func (b *Board) Node() *Node {
	var n *Node
	for _, pos := range b.game.Positions() {
		n = n.child(pos)
	}
	if n == nil {
		n = NewNode(b.game.Position())
	}
	return n
}

func hasMethod(methods []chess.Method, m chess.Method) bool {
	for _, v := range methods {
		if v == m {
			return true
		}
	}
	return false
}
