package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/notnil/chess"

	"chessPlay/internal/testutil"
)

type fakeTime struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// silentTicker never fires; tests drive the clock with Tick.
type silentTicker struct{ c chan time.Time }

func (s silentTicker) C() <-chan time.Time { return s.c }
func (silentTicker) Stop()                 {}

type timeouts struct {
	mu     sync.Mutex
	losers []chess.Color
}

func (tr *timeouts) record(loser chess.Color) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.losers = append(tr.losers, loser)
}

func (tr *timeouts) get() []chess.Color {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]chess.Color(nil), tr.losers...)
}

func newTestClock() (*Clock, *fakeTime, *timeouts) {
	ft := &fakeTime{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	tr := &timeouts{}
	c := New(tr.record,
		WithNow(ft.Now),
		WithTicker(func(time.Duration) Ticker { return silentTicker{c: make(chan time.Time)} }),
	)
	return c, ft, tr
}

var oneMinutePlusFive = TimeControl{ID: "test", Initial: time.Minute, Increment: 5 * time.Second}

func TestStartLeavesClockIdle(t *testing.T) {
	c, ft, _ := newTestClock()
	c.Start(oneMinutePlusFive)
	ft.Advance(10 * time.Second)
	c.Tick()
	testutil.AssertEqual(t, c.State(), State{White: time.Minute, Black: time.Minute, Active: chess.White})
}

func TestIncrementOnSwitch(t *testing.T) {
	c, ft, _ := newTestClock()
	c.Start(oneMinutePlusFive)
	c.StartCountdown()
	ft.Advance(10 * time.Second)
	c.Tick()
	c.SwitchTurn(chess.Black)

	st := c.State()
	testutil.AssertEqual(t, st.White, 55*time.Second)
	testutil.AssertEqual(t, st.Black, time.Minute)
	testutil.AssertEqual(t, st.Active, chess.Black)
	testutil.AssertTrue(t, st.Running)
}

func TestSwitchSettlesUnTickedTime(t *testing.T) {
	c, ft, _ := newTestClock()
	c.Start(TimeControl{Initial: time.Minute})
	c.StartCountdown()
	ft.Advance(1500 * time.Millisecond)
	c.SwitchTurn(chess.Black)
	testutil.AssertEqual(t, c.State().White, 58500*time.Millisecond)
}

func TestMonotonicWithoutIncrement(t *testing.T) {
	c, ft, _ := newTestClock()
	c.Start(TimeControl{Initial: 20 * time.Second})
	c.StartCountdown()

	prev := c.State()
	for i := 0; i < 50; i++ {
		ft.Advance(130 * time.Millisecond)
		c.Tick()
		if i%7 == 6 {
			c.SwitchTurn(prev.Active.Other())
		}
		cur := c.State()
		testutil.AssertTrue(t, cur.White <= prev.White, "white grew at step %d", i)
		testutil.AssertTrue(t, cur.Black <= prev.Black, "black grew at step %d", i)
		prev = cur
	}
}

func TestTimeoutFiresOnce(t *testing.T) {
	c, ft, tr := newTestClock()
	c.Start(TimeControl{Initial: time.Second})
	c.StartCountdown()

	ft.Advance(700 * time.Millisecond)
	c.Tick()
	testutil.AssertEqual(t, len(tr.get()), 0)

	ft.Advance(700 * time.Millisecond)
	c.Tick()
	ft.Advance(time.Second)
	c.Tick()
	c.Resume()
	c.Tick()
	c.SwitchTurn(chess.Black)

	testutil.AssertEqual(t, tr.get(), []chess.Color{chess.White})
	st := c.State()
	testutil.AssertEqual(t, st.White, time.Duration(0))
	testutil.AssertFalse(t, st.Running)

	// A new lifecycle re-arms the callback.
	c.Start(TimeControl{Initial: time.Second})
	c.StartCountdown()
	c.SwitchTurn(chess.Black)
	ft.Advance(2 * time.Second)
	c.Tick()
	testutil.AssertEqual(t, tr.get(), []chess.Color{chess.White, chess.Black})
}

func TestPauseResume(t *testing.T) {
	c, ft, _ := newTestClock()
	c.Start(TimeControl{Initial: time.Minute})
	c.StartCountdown()
	ft.Advance(3 * time.Second)
	c.Pause()
	testutil.AssertEqual(t, c.State().White, 57*time.Second)

	ft.Advance(time.Hour)
	c.Tick()
	testutil.AssertEqual(t, c.State().White, 57*time.Second)

	c.Resume()
	ft.Advance(2 * time.Second)
	c.Tick()
	testutil.AssertEqual(t, c.State().White, 55*time.Second)
}

func TestStopClearsActive(t *testing.T) {
	c, ft, _ := newTestClock()
	c.Start(TimeControl{Initial: time.Minute})
	c.StartCountdown()
	ft.Advance(time.Second)
	c.Stop()
	st := c.State()
	testutil.AssertEqual(t, st, State{White: 59 * time.Second, Black: time.Minute, Active: chess.NoColor})

	c.Resume()
	testutil.AssertFalse(t, c.State().Running, "resume without an active side")
}

func TestResetWithExplicitTimes(t *testing.T) {
	c, _, _ := newTestClock()
	white, black := 42*time.Second, 17*time.Second
	c.Reset(oneMinutePlusFive, &white, &black)
	testutil.AssertEqual(t, c.State(), State{White: white, Black: black, Active: chess.NoColor})
	testutil.AssertEqual(t, c.Increment(), 5*time.Second)

	c.Reset(oneMinutePlusFive, nil, nil)
	testutil.AssertEqual(t, c.State().Black, time.Minute)
}

func TestRestoreChargesElapsedToActiveSide(t *testing.T) {
	c, ft, tr := newTestClock()
	savedAt := ft.Now()
	ft.Advance(4 * time.Second)
	c.Restore(oneMinutePlusFive, 30*time.Second, 20*time.Second, chess.Black, savedAt)

	st := c.State()
	testutil.AssertEqual(t, st.White, 30*time.Second)
	testutil.AssertEqual(t, st.Black, 16*time.Second)
	testutil.AssertFalse(t, st.Running)

	// Saved long ago: the flag falls as soon as the clock runs.
	c.Restore(oneMinutePlusFive, 30*time.Second, 20*time.Second, chess.Black, savedAt.Add(-time.Hour))
	c.Resume()
	c.Tick()
	testutil.AssertEqual(t, tr.get(), []chess.Color{chess.Black})
}

func TestAddIncrement(t *testing.T) {
	c, _, _ := newTestClock()
	c.Start(TimeControl{Initial: time.Minute})
	c.AddIncrement(chess.Black, 3*time.Second)
	testutil.AssertEqual(t, c.State().Black, 63*time.Second)
}

func TestRealTickerDrivesCountdown(t *testing.T) {
	tr := &timeouts{}
	c := New(tr.record)
	c.Start(TimeControl{Initial: 250 * time.Millisecond})
	c.StartCountdown()
	testutil.Eventually(t, 3*time.Second, func() bool { return len(tr.get()) == 1 })
	testutil.AssertEqual(t, c.State().White, time.Duration(0))
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{-time.Second, "0:00"},
		{100 * time.Millisecond, "0:01"},
		{59 * time.Second, "0:59"},
		{3 * time.Minute, "3:00"},
		{10*time.Minute + 4500*time.Millisecond, "10:05"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			testutil.AssertEqual(t, Format(tt.in), tt.want)
		})
	}
}

func TestLookupTimeControl(t *testing.T) {
	tc, ok := LookupTimeControl("blitz-5-3")
	testutil.AssertTrue(t, ok)
	testutil.AssertEqual(t, tc, TimeControl{ID: "blitz-5-3", Name: "5m+3s", Initial: 5 * time.Minute, Increment: 3 * time.Second})
	_, ok = LookupTimeControl("bullet-1")
	testutil.AssertFalse(t, ok)
	testutil.AssertEqual(t, len(TimeControls()), 6)
}
