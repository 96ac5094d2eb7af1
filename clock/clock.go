// Package clock implements a two-sided chess clock.
package clock

import (
	"sync"
	"time"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"
)

// TickInterval is how often a running clock is decremented.
const TickInterval = 100 * time.Millisecond

// State is a snapshot of the clock. Active is chess.NoColor when no side is
// on move; Running implies Active is set.
type State struct {
	White   time.Duration
	Black   time.Duration
	Active  chess.Color
	Running bool
}

// Remaining returns the time left for c.
func (s State) Remaining(c chess.Color) time.Duration {
	if c == chess.Black {
		return s.Black
	}
	return s.White
}

// Ticker drives a running clock. The default wraps time.Ticker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type Option func(*Clock)

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// WithTicker replaces the tick source.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(c *Clock) { c.newTicker = fn }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Clock) { c.logger = logger }
}

// Clock counts down the side on move. All operations and ticks are
// serialized; the timeout callback runs outside the lock, at most once until
// the next Start, Reset or Restore.
type Clock struct {
	now       func() time.Time
	newTicker func(time.Duration) Ticker
	onTimeout func(loser chess.Color)
	logger    zerolog.Logger

	mu        sync.Mutex
	white     time.Duration
	black     time.Duration
	active    chess.Color
	running   bool
	increment time.Duration
	lastTick  time.Time
	timedOut  bool
	ticker    Ticker
	stopTick  chan struct{}
}

// New returns a stopped clock with no time on it. onTimeout may be nil.
func New(onTimeout func(loser chess.Color), opts ...Option) *Clock {
	c := &Clock{
		now:       time.Now,
		newTicker: newRealTicker,
		onTimeout: onTimeout,
		logger:    zerolog.Nop(),
		active:    chess.NoColor,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start loads tc and puts White on move without starting the countdown.
func (c *Clock) Start(tc TimeControl) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTicker()
	c.white, c.black = tc.Initial, tc.Initial
	c.increment = tc.Increment
	c.active = chess.White
	c.running = false
	c.timedOut = false
}

// StartCountdown begins decrementing the active side.
func (c *Clock) StartCountdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resume()
}

// SwitchTurn hands the move to next. The side that was on move receives the
// increment.
func (c *Clock) SwitchTurn(next chess.Color) {
	c.mu.Lock()
	loser, fired := c.settle()
	if !c.timedOut {
		if prev := c.active; prev != chess.NoColor && c.increment > 0 {
			c.add(prev, c.increment)
		}
		c.active = next
	}
	c.mu.Unlock()
	c.fire(loser, fired)
}

func (c *Clock) Pause() {
	c.mu.Lock()
	loser, fired := c.settle()
	c.running = false
	c.stopTicker()
	c.mu.Unlock()
	c.fire(loser, fired)
}

func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resume()
}

// Stop halts the clock and clears the active side.
func (c *Clock) Stop() {
	c.mu.Lock()
	loser, fired := c.settle()
	c.running = false
	c.active = chess.NoColor
	c.stopTicker()
	c.mu.Unlock()
	c.fire(loser, fired)
}

// Reset loads tc, optionally with explicit remaining times, and leaves the
// clock stopped with no side on move.
func (c *Clock) Reset(tc TimeControl, white, black *time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTicker()
	c.white, c.black = tc.Initial, tc.Initial
	if white != nil {
		c.white = max(0, *white)
	}
	if black != nil {
		c.black = max(0, *black)
	}
	c.increment = tc.Increment
	c.active = chess.NoColor
	c.running = false
	c.timedOut = false
}

// Restore reloads a saved clock. Wall time that passed since savedAt is
// charged to the side that was on move. The clock stays paused until Resume.
func (c *Clock) Restore(tc TimeControl, white, black time.Duration, active chess.Color, savedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTicker()
	c.white, c.black = max(0, white), max(0, black)
	c.increment = tc.Increment
	c.active = active
	c.running = false
	c.timedOut = false
	if active != chess.NoColor && !savedAt.IsZero() {
		if elapsed := c.now().Sub(savedAt); elapsed > 0 {
			c.add(active, -elapsed)
		}
	}
}

// AddIncrement gives c extra time.
func (c *Clock) AddIncrement(color chess.Color, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.add(color, d)
}

func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{White: c.white, Black: c.black, Active: c.active, Running: c.running}
}

// Increment returns the per-move increment of the loaded time control.
func (c *Clock) Increment() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.increment
}

// Tick charges elapsed wall time to the active side. The internal ticker
// calls it every TickInterval.
func (c *Clock) Tick() {
	c.mu.Lock()
	loser, fired := c.settle()
	c.mu.Unlock()
	c.fire(loser, fired)
}

func (c *Clock) resume() {
	if c.running || c.active == chess.NoColor || c.timedOut {
		return
	}
	c.running = true
	c.lastTick = c.now()
	c.startTicker()
}

// settle charges time since the last tick. It reports a timeout the first
// time the active side reaches zero.
func (c *Clock) settle() (chess.Color, bool) {
	if !c.running || c.active == chess.NoColor {
		return chess.NoColor, false
	}
	now := c.now()
	elapsed := now.Sub(c.lastTick)
	c.lastTick = now
	if elapsed > 0 {
		c.add(c.active, -elapsed)
	}
	if c.remaining(c.active) > 0 {
		return chess.NoColor, false
	}
	c.running = false
	c.stopTicker()
	if c.timedOut {
		return chess.NoColor, false
	}
	c.timedOut = true
	c.logger.Debug().Str("loser", c.active.Name()).Msg("flag fell")
	return c.active, true
}

func (c *Clock) fire(loser chess.Color, fired bool) {
	if fired && c.onTimeout != nil {
		c.onTimeout(loser)
	}
}

func (c *Clock) remaining(color chess.Color) time.Duration {
	if color == chess.Black {
		return c.black
	}
	return c.white
}

func (c *Clock) add(color chess.Color, d time.Duration) {
	switch color {
	case chess.White:
		c.white = max(0, c.white+d)
	case chess.Black:
		c.black = max(0, c.black+d)
	}
}

func (c *Clock) startTicker() {
	if c.ticker != nil {
		return
	}
	t := c.newTicker(TickInterval)
	stop := make(chan struct{})
	c.ticker, c.stopTick = t, stop
	go func() {
		for {
			select {
			case <-t.C():
				c.Tick()
			case <-stop:
				return
			}
		}
	}()
}

func (c *Clock) stopTicker() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.stopTick)
	c.ticker, c.stopTick = nil, nil
}
