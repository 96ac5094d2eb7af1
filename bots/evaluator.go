package bots

import (
	"github.com/notnil/chess"
)

// DefaultEvaluator scores positions from White's point of view with
// material, piece-square tables and a small mobility term.
type DefaultEvaluator struct{}

const (
	MobilityWeight = 2

	// PromotionOrderBonus is added to promotions when ordering moves.
	PromotionOrderBonus = 800
)

var pieceValues = [...]int{
	chess.NoPieceType: 0,
	chess.King:        20000,
	chess.Queen:       900,
	chess.Rook:        500,
	chess.Bishop:      330,
	chess.Knight:      320,
	chess.Pawn:        100,
}

// Tables are written from White's side with a8 first, so index 0 is a8 and
// index 63 is h1. Black reads them mirrored.
var pawnTable = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	50, 50, 50, 50, 50, 50, 50, 50,
	10, 10, 20, 30, 30, 20, 10, 10,
	5, 5, 10, 25, 25, 10, 5, 5,
	0, 0, 0, 20, 20, 0, 0, 0,
	5, -5, -10, 0, 0, -10, -5, 5,
	5, 10, 10, -20, -20, 10, 10, 5,
	0, 0, 0, 0, 0, 0, 0, 0,
}

var knightTable = [64]int{
	-50, -40, -30, -30, -30, -30, -40, -50,
	-40, -20, 0, 0, 0, 0, -20, -40,
	-30, 0, 10, 15, 15, 10, 0, -30,
	-30, 5, 15, 20, 20, 15, 5, -30,
	-30, 0, 15, 20, 20, 15, 0, -30,
	-30, 5, 10, 15, 15, 10, 5, -30,
	-40, -20, 0, 5, 5, 0, -20, -40,
	-50, -40, -30, -30, -30, -30, -40, -50,
}

var bishopTable = [64]int{
	-20, -10, -10, -10, -10, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 10, 10, 5, 0, -10,
	-10, 5, 5, 10, 10, 5, 5, -10,
	-10, 0, 10, 10, 10, 10, 0, -10,
	-10, 10, 10, 10, 10, 10, 10, -10,
	-10, 5, 0, 0, 0, 0, 5, -10,
	-20, -10, -10, -10, -10, -10, -10, -20,
}

var rookTable = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	5, 10, 10, 10, 10, 10, 10, 5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	0, 0, 0, 5, 5, 0, 0, 0,
}

var queenTable = [64]int{
	-20, -10, -10, -5, -5, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 5, 5, 5, 0, -10,
	-5, 0, 5, 5, 5, 5, 0, -5,
	0, 0, 5, 5, 5, 5, 0, -5,
	-10, 5, 5, 5, 5, 5, 0, -10,
	-10, 0, 5, 0, 0, 0, 0, -10,
	-20, -10, -10, -5, -5, -10, -10, -20,
}

// No endgame king table: the middlegame one is used throughout.
var kingTable = [64]int{
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-20, -30, -30, -40, -40, -30, -30, -20,
	-10, -20, -20, -20, -20, -20, -20, -10,
	20, 20, 0, 0, 0, 0, 20, 20,
	20, 30, 10, 0, 0, 10, 30, 20,
}

func pieceTable(pt chess.PieceType) *[64]int {
	switch pt {
	case chess.Pawn:
		return &pawnTable
	case chess.Knight:
		return &knightTable
	case chess.Bishop:
		return &bishopTable
	case chess.Rook:
		return &rookTable
	case chess.Queen:
		return &queenTable
	case chess.King:
		return &kingTable
	}
	return nil
}

// tableIndex maps a square to its table slot for the given side.
func tableIndex(sq chess.Square, c chess.Color) int {
	file := int(sq.File())
	rank := int(sq.Rank())
	if c == chess.White {
		return (7-rank)*8 + file
	}
	return rank*8 + file
}

// PieceValue returns the material value of a piece type.
func PieceValue(pt chess.PieceType) int {
	if int(pt) < 0 || int(pt) >= len(pieceValues) {
		return 0
	}
	return pieceValues[pt]
}

// Evaluate returns a score where positive favors White, whoever is to move.
func (e DefaultEvaluator) Evaluate(pos *chess.Position) int {
	score := 0
	for sq, piece := range pos.Board().SquareMap() {
		value := PieceValue(piece.Type())
		if table := pieceTable(piece.Type()); table != nil {
			value += table[tableIndex(sq, piece.Color())]
		}
		if piece.Color() == chess.White {
			score += value
		} else {
			score -= value
		}
	}

	mobility := len(pos.ValidMoves()) * MobilityWeight
	if pos.Turn() == chess.White {
		score += mobility
	} else {
		score -= mobility
	}
	return score
}
