package bots

import (
	"math/rand"

	"chessPlay/rules"
)

// randomMove picks uniformly among moves. It returns nil for an empty list.
func randomMove(rng *rand.Rand, moves []*rules.Move) *rules.Move {
	if len(moves) == 0 {
		return nil
	}
	return moves[rng.Intn(len(moves))]
}
