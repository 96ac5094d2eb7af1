package rules

import (
	"strconv"
	"strings"

	"github.com/notnil/chess"
)

// Outcome classifies a search node.
type Outcome int

const (
	Ongoing Outcome = iota
	Mate
	Drawn
)

// Node is an immutable position inside a search tree. Children are built
// with Position.Update, so sibling branches never share mutable state; the
// parent link is only read to count repetitions.
type Node struct {
	pos      *chess.Position
	parent   *Node
	key      string
	halfMove int
}

// NewNode returns a root node without history.
func NewNode(pos *chess.Position) *Node {
	var n *Node
	return n.child(pos)
}

// NodeFromFEN is a convenience for tests and tools.
func NodeFromFEN(fen string) (*Node, error) {
	b, err := FromFEN(fen)
	if err != nil {
		return nil, err
	}
	return b.Node(), nil
}

func (n *Node) child(pos *chess.Position) *Node {
	fields := strings.Fields(pos.String())
	c := &Node{pos: pos, parent: n}
	if len(fields) >= 4 {
		c.key = strings.Join(fields[:4], " ")
	}
	if len(fields) >= 5 {
		c.halfMove, _ = strconv.Atoi(fields[4])
	}
	return c
}

func (n *Node) Position() *chess.Position {
	return n.pos
}

func (n *Node) Turn() chess.Color {
	return n.pos.Turn()
}

func (n *Node) FEN() string {
	return n.pos.String()
}

// Moves lists the legal moves from this node.
func (n *Node) Moves() []*Move {
	raw := n.pos.ValidMoves()
	moves := make([]*Move, 0, len(raw))
	for _, m := range raw {
		moves = append(moves, newMove(n.pos, m))
	}
	return moves
}

// Child returns the node reached by playing m, which must come from Moves.
func (n *Node) Child(m *Move) *Node {
	return n.child(n.pos.Update(m.raw))
}

// Outcome reports checkmate, a draw, or Ongoing.
func (n *Node) Outcome() Outcome {
	switch n.pos.Status() {
	case chess.Checkmate:
		return Mate
	case chess.Stalemate:
		return Drawn
	}
	if n.halfMove >= halfMoveClockForFiftyMoveRule {
		return Drawn
	}
	if InsufficientMaterial(n.pos.Board()) {
		return Drawn
	}
	if n.repetitions() >= repetitionsForThreefold {
		return Drawn
	}
	return Ongoing
}

// IsGameOver reports whether the rules library considers the node final.
func (n *Node) IsGameOver() bool {
	return n.Outcome() != Ongoing
}

func (n *Node) repetitions() int {
	count := 0
	// An irreversible move resets the half-move clock, so nothing older can repeat.
	for p, plies := n, 0; p != nil && plies <= n.halfMove; p, plies = p.parent, plies+1 {
		if p.key == n.key {
			count++
		}
	}
	return count
}
