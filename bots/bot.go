// bot.go
package bots

import (
	"context"

	"github.com/notnil/chess"

	"chessPlay/rules"
)

// ChessBot is implemented by every computer opponent.
type ChessBot interface {
	BestMove(node *rules.Node) *rules.Move
	Think(ctx context.Context, board *rules.Board) (<-chan Result, error)
	Name() string
}

// PositionEvaluator scores a position; positive favors White.
type PositionEvaluator interface {
	Evaluate(pos *chess.Position) int
}

// Result is delivered when a bot finishes thinking. FEN identifies the
// position the move was chosen for.
type Result struct {
	Move *rules.Move
	FEN  string
}

// Bot plays at a fixed difficulty tier.
type Bot struct {
	profile  Profile
	selector *Selector
}

func NewBot(tier Tier, selector *Selector) *Bot {
	if selector == nil {
		selector = NewSelector()
	}
	return &Bot{profile: tier.Profile(), selector: selector}
}

func (b *Bot) Profile() Profile {
	return b.profile
}

func (b *Bot) Name() string {
	return b.profile.Name
}

func (b *Bot) BestMove(node *rules.Node) *rules.Move {
	return b.selector.SelectMove(node, b.profile)
}

func (b *Bot) Think(ctx context.Context, board *rules.Board) (<-chan Result, error) {
	return b.selector.Think(ctx, board.Node(), b.profile)
}
