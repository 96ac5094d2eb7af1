package rules

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// Move is a legal transition produced by the rules library together with the
// metadata the search and the front end need.
type Move struct {
	From      chess.Square
	To        chess.Square
	Promotion chess.PieceType
	Captured  chess.PieceType
	Color     chess.Color

	raw *chess.Move
	pos *chess.Position
	san string
}

func newMove(pos *chess.Position, m *chess.Move) *Move {
	captured := pos.Board().Piece(m.S2()).Type()
	if m.HasTag(chess.EnPassant) {
		captured = chess.Pawn
	}
	return &Move{
		From:      m.S1(),
		To:        m.S2(),
		Promotion: m.Promo(),
		Captured:  captured,
		Color:     pos.Turn(),
		raw:       m,
		pos:       pos,
	}
}

// IsCapture reports whether the move removes an enemy piece.
func (m *Move) IsCapture() bool {
	return m.Captured != chess.NoPieceType
}

// IsPromotion reports whether a pawn is promoted.
func (m *Move) IsPromotion() bool {
	return m.Promotion != chess.NoPieceType
}

// UCI returns the coordinate notation, e.g. "e2e4" or "e7e8q". Moves built
// by hand rather than by the board are formatted from their fields.
func (m *Move) UCI() string {
	if m.raw == nil {
		return m.From.String() + m.To.String() + m.Promotion.String()
	}
	return m.raw.String()
}

// SAN returns standard algebraic notation. It is computed lazily since the
// search never needs it.
func (m *Move) SAN() string {
	if m.raw == nil || m.pos == nil {
		return m.UCI()
	}
	if m.san == "" {
		m.san = chess.AlgebraicNotation{}.Encode(m.pos, m.raw)
	}
	return m.san
}

func (m *Move) String() string {
	return m.UCI()
}

// ParseSquare converts a coordinate such as "e4" into a square.
func ParseSquare(s string) (chess.Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSquare, s)
	}
	file := int(s[0] - 'a')
	rank := int(s[1] - '1')
	return chess.Square(file + rank*8), nil
}

// ParsePromotion maps "q", "r", "b", "n" to a piece type. An empty string
// yields NoPieceType.
func ParsePromotion(s string) (chess.PieceType, error) {
	switch strings.ToLower(s) {
	case "":
		return chess.NoPieceType, nil
	case "q":
		return chess.Queen, nil
	case "r":
		return chess.Rook, nil
	case "b":
		return chess.Bishop, nil
	case "n":
		return chess.Knight, nil
	}
	return chess.NoPieceType, fmt.Errorf("%w: promotion %q", ErrIllegalMove, s)
}
