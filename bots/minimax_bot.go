package bots

import (
	"sort"

	"github.com/notnil/chess"

	"chessPlay/rules"
)

const (
	// MateScore stands in for an infinite score. Checkmates are scored
	// MateScore plus the remaining depth, so nearer mates rank higher.
	MateScore = 1_000_000

	// Infinity bounds the alpha-beta window.
	Infinity = 2 * MateScore
)

// SearchResult is a move with its score from White's point of view.
type SearchResult struct {
	Move  *rules.Move
	Score int
}

// Searcher runs a depth-limited minimax with alpha-beta pruning. It holds
// no per-search state and is safe for concurrent use.
type Searcher struct {
	Evaluator PositionEvaluator
}

func NewSearcher(evaluator PositionEvaluator) *Searcher {
	if evaluator == nil {
		evaluator = DefaultEvaluator{}
	}
	return &Searcher{Evaluator: evaluator}
}

// Search scores node to the given depth. maximizing is true when the side to
// move is White.
func (s *Searcher) Search(node *rules.Node, depth, alpha, beta int, maximizing bool) int {
	switch node.Outcome() {
	case rules.Mate:
		if maximizing {
			return -(MateScore + depth)
		}
		return MateScore + depth
	case rules.Drawn:
		return 0
	}
	if depth <= 0 {
		return s.Evaluator.Evaluate(node.Position())
	}

	moves := OrderMoves(node.Moves())

	if maximizing {
		best := -Infinity
		for _, m := range moves {
			score := s.Search(node.Child(m), depth-1, alpha, beta, false)
			if score > best {
				best = score
			}
			if best > alpha {
				alpha = best
			}
			if beta <= alpha {
				break
			}
		}
		return best
	}

	best := Infinity
	for _, m := range moves {
		score := s.Search(node.Child(m), depth-1, alpha, beta, true)
		if score < best {
			best = score
		}
		if best < beta {
			beta = best
		}
		if beta <= alpha {
			break
		}
	}
	return best
}

// BestMove searches every root move and returns the best one for the side to
// move. The move is nil when there are no legal moves.
func (s *Searcher) BestMove(node *rules.Node, depth int) SearchResult {
	white := node.Turn() == chess.White
	result := SearchResult{Score: -Infinity}
	if !white {
		result.Score = Infinity
	}
	for _, m := range OrderMoves(node.Moves()) {
		score := s.Search(node.Child(m), depth-1, -Infinity, Infinity, !white)
		if result.Move == nil ||
			(white && score > result.Score) ||
			(!white && score < result.Score) {
			result = SearchResult{Move: m, Score: score}
		}
	}
	return result
}

// OrderMoves sorts captures of valuable pieces and promotions first. The sort
// is stable so equal moves keep the rules library's order.
func OrderMoves(moves []*rules.Move) []*rules.Move {
	sort.SliceStable(moves, func(i, j int) bool {
		return orderScore(moves[i]) > orderScore(moves[j])
	})
	return moves
}

func orderScore(m *rules.Move) int {
	score := 0
	if m.IsCapture() {
		score += PieceValue(m.Captured)
	}
	if m.IsPromotion() {
		score += PromotionOrderBonus
	}
	return score
}
