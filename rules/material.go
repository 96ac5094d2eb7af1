package rules

import "github.com/notnil/chess"

// InsufficientMaterial reports whether neither side can possibly deliver
// mate: bare kings, a single minor piece, or bishops that all share one
// square colour.
func InsufficientMaterial(board *chess.Board) bool {
	var minors, knights int
	bishopColors := map[int]bool{}
	for sq, piece := range board.SquareMap() {
		switch piece.Type() {
		case chess.King:
		case chess.Knight:
			minors++
			knights++
		case chess.Bishop:
			minors++
			bishopColors[(int(sq.File())+int(sq.Rank()))%2] = true
		default:
			return false
		}
	}
	if minors <= 1 {
		return true
	}
	return knights == 0 && len(bishopColors) == 1
}
