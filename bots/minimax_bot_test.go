package bots

import (
	"testing"

	"github.com/notnil/chess"

	"chessPlay/internal/testutil"
	"chessPlay/rules"
)

func node(t *testing.T, fen string) *rules.Node {
	t.Helper()
	n, err := rules.NodeFromFEN(fen)
	testutil.AssertNoError(t, err)
	return n
}

// plainMinimax is the unpruned reference the alpha-beta search must agree with.
func plainMinimax(s *Searcher, n *rules.Node, depth int, maximizing bool) int {
	switch n.Outcome() {
	case rules.Mate:
		if maximizing {
			return -(MateScore + depth)
		}
		return MateScore + depth
	case rules.Drawn:
		return 0
	}
	if depth <= 0 {
		return s.Evaluator.Evaluate(n.Position())
	}
	best := Infinity
	if maximizing {
		best = -Infinity
	}
	for _, m := range n.Moves() {
		score := plainMinimax(s, n.Child(m), depth-1, !maximizing)
		if maximizing {
			best = max(best, score)
		} else {
			best = min(best, score)
		}
	}
	return best
}

func TestSearchFindsMateInOne(t *testing.T) {
	s := NewSearcher(nil)
	n := node(t, "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1")
	for depth := 1; depth <= 3; depth++ {
		res := s.BestMove(n, depth)
		if res.Move == nil {
			t.Fatalf("depth %d: no move", depth)
		}
		testutil.AssertEqual(t, res.Move.UCI(), "a1a8", "depth %d", depth)
		testutil.AssertTrue(t, res.Score >= MateScore, "depth %d score %d", depth, res.Score)
	}
}

func TestSearchPrefersShorterMate(t *testing.T) {
	s := NewSearcher(nil)
	n := node(t, "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1")
	var mateChild *rules.Node
	for _, m := range n.Moves() {
		if m.UCI() == "a1a8" {
			mateChild = n.Child(m)
		}
	}
	shallow := s.Search(mateChild, 2, -Infinity, Infinity, false)
	deep := s.Search(mateChild, 0, -Infinity, Infinity, false)
	testutil.AssertEqual(t, shallow, MateScore+2)
	testutil.AssertEqual(t, deep, MateScore)
}

func TestAlphaBetaMatchesPlainMinimax(t *testing.T) {
	tests := []struct {
		fen      string
		maxDepth int
	}{
		{"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", 3},
		{"r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3", 2},
		{"6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1", 3},
		{"8/5pk1/6p1/8/3R4/6P1/5PK1/2r5 b - - 0 40", 3},
		{"k7/3Q4/1K6/8/8/8/8/8 w - - 0 1", 3},
	}
	s := NewSearcher(nil)
	for _, tt := range tests {
		t.Run(tt.fen, func(t *testing.T) {
			n := node(t, tt.fen)
			white := n.Turn() == chess.White
			for depth := 1; depth <= tt.maxDepth; depth++ {
				want := plainMinimax(s, n, depth, white)
				got := s.Search(n, depth, -Infinity, Infinity, white)
				testutil.AssertEqual(t, got, want, "depth %d", depth)
			}
		})
	}
}

func TestStalemateLineScoresZero(t *testing.T) {
	s := NewSearcher(nil)
	n := node(t, "k7/3Q4/1K6/8/8/8/8/8 w - - 0 1")
	var stalemate *rules.Node
	for _, m := range n.Moves() {
		if m.UCI() == "d7c7" {
			stalemate = n.Child(m)
		}
	}
	if stalemate == nil {
		t.Fatal("d7c7 not legal")
	}
	testutil.AssertEqual(t, stalemate.Outcome(), rules.Drawn)
	for depth := 1; depth <= 4; depth++ {
		testutil.AssertEqual(t, s.Search(stalemate, depth, -Infinity, Infinity, false), 0, "depth %d", depth)
	}

	// Up a queen, the stalemating move must never be chosen.
	res := s.BestMove(n, 2)
	testutil.AssertTrue(t, res.Move.UCI() != "d7c7", "chose stalemate")
}

func TestOrderMovesPutsCapturesFirst(t *testing.T) {
	n := node(t, "4k3/8/8/3q4/4P3/8/8/4K3 w - - 0 1")
	moves := OrderMoves(n.Moves())
	testutil.AssertEqual(t, moves[0].UCI(), "e4d5")
	testutil.AssertEqual(t, moves[0].Captured, chess.Queen)
}

func TestBestMoveWithoutLegalMoves(t *testing.T) {
	s := NewSearcher(nil)
	n := node(t, "k7/2Q5/1K6/8/8/8/8/8 b - - 0 1")
	res := s.BestMove(n, 3)
	if res.Move != nil {
		t.Fatalf("expected no move, got %s", res.Move)
	}
}
