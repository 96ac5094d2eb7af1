package bots

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chessPlay/rules"
)

// ErrBusy is returned by Think while an earlier computation is pending.
var ErrBusy = errors.New("bots: already thinking")

// topChoices is how many of the best moves a noisy tier may pick from.
const topChoices = 3

// Selector turns a difficulty profile into a concrete move.
type Selector struct {
	searcher    *Searcher
	logger      zerolog.Logger
	parallelism int
	delay       func(p Profile, rng func() float64) time.Duration

	mu  sync.Mutex
	rng *rand.Rand

	busy atomic.Bool
}

type Option func(*Selector)

// WithRand fixes the random source, mostly for tests.
func WithRand(rng *rand.Rand) Option {
	return func(s *Selector) { s.rng = rng }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Selector) { s.logger = logger }
}

func WithEvaluator(e PositionEvaluator) Option {
	return func(s *Selector) { s.searcher = NewSearcher(e) }
}

// WithDelay replaces the thinking delay. A zero function result means no
// delay at all.
func WithDelay(fn func(p Profile) time.Duration) Option {
	return func(s *Selector) {
		s.delay = func(p Profile, _ func() float64) time.Duration { return fn(p) }
	}
}

// WithParallelism bounds how many root moves are searched at once.
func WithParallelism(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

func NewSelector(opts ...Option) *Selector {
	s := &Selector{
		searcher:    NewSearcher(nil),
		logger:      zerolog.Nop(),
		parallelism: 4,
		delay:       thinkingDelay,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func thinkingDelay(p Profile, rng func() float64) time.Duration {
	return p.ThinkingTime + time.Duration(rng()*float64(ThinkingJitter))
}

func (s *Selector) float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *Selector) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// SelectMove picks a move for the side to move in node. It returns nil only
// when there is no legal move.
func (s *Selector) SelectMove(node *rules.Node, p Profile) *rules.Move {
	return s.selectMove(context.Background(), node, p)
}

// selectMove is SelectMove that gives up, returning nil, once ctx is done.
func (s *Selector) selectMove(ctx context.Context, node *rules.Node, p Profile) *rules.Move {
	moves := node.Moves()
	switch len(moves) {
	case 0:
		return nil
	case 1:
		return moves[0]
	}

	if p.MostlyRandom {
		return s.beginnerMove(node, moves)
	}

	scored, err := s.scoreMoves(ctx, node, moves, p.SearchDepth)
	if err != nil {
		return nil
	}
	white := node.Turn() == chess.White
	for i := range scored {
		noise := int((s.float() - 0.5) * 100 * p.Randomness)
		scored[i].Score += noise
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if white {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Score < scored[j].Score
	})

	if p.Randomness > 0 && s.float() < p.Randomness {
		n := min(topChoices, len(scored))
		pick := scored[s.intn(n)]
		s.logger.Debug().Str("tier", p.ID).Str("move", pick.Move.UCI()).Msg("picked among top moves")
		return pick.Move
	}
	return scored[0].Move
}

// beginnerMove plays randomly most of the time and otherwise takes the move
// with the best static evaluation one ply ahead.
func (s *Selector) beginnerMove(node *rules.Node, moves []*rules.Move) *rules.Move {
	if s.float() < BeginnerRandomRate {
		s.mu.Lock()
		defer s.mu.Unlock()
		return randomMove(s.rng, moves)
	}

	white := node.Turn() == chess.White
	var best *rules.Move
	bestScore := 0
	for _, m := range moves {
		score := s.searcher.Evaluator.Evaluate(node.Child(m).Position())
		if best == nil || (white && score > bestScore) || (!white && score < bestScore) {
			best, bestScore = m, score
		}
	}
	return best
}

// scoreMoves searches every root move at depth-1 from the opponent's side.
// Each goroutine owns its child node, so results need no locking beyond the
// slot it writes. Root moves not yet searched are skipped once ctx is done.
func (s *Selector) scoreMoves(ctx context.Context, node *rules.Node, moves []*rules.Move, depth int) ([]SearchResult, error) {
	results := make([]SearchResult, len(moves))
	opponentMaximizes := node.Turn() == chess.Black

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, m := range moves {
		i, m := i, m
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			child := node.Child(m)
			results[i] = SearchResult{
				Move:  m,
				Score: s.searcher.Search(child, depth-1, -Infinity, Infinity, opponentMaximizes),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Think selects a move after the profile's thinking delay. The returned
// channel yields at most one Result and is then closed; cancelling ctx
// closes it without a result.
func (s *Selector) Think(ctx context.Context, node *rules.Node, p Profile) (<-chan Result, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}

	out := make(chan Result, 1)
	delay := s.delay(p, s.float)
	go func() {
		defer close(out)
		move := s.think(ctx, node, p, delay)
		// Released before delivery so the receiver may start the next think
		// as soon as it has the move.
		s.busy.Store(false)
		if move != nil {
			out <- Result{Move: move, FEN: node.FEN()}
		}
	}()
	return out, nil
}

// think waits out delay and then searches. It returns nil when ctx is
// cancelled during either step.
func (s *Selector) think(ctx context.Context, node *rules.Node, p Profile, delay time.Duration) *rules.Move {
	start := time.Now()
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
	var move *rules.Move
	if ctx.Err() == nil {
		move = s.selectMove(ctx, node, p)
	}
	if ctx.Err() != nil {
		s.logger.Debug().Str("tier", p.ID).Msg("thinking cancelled")
		return nil
	}
	if move != nil {
		s.logger.Debug().
			Str("tier", p.ID).
			Str("move", move.UCI()).
			Dur("took", time.Since(start)).
			Msg("bot move selected")
	}
	return move
}
