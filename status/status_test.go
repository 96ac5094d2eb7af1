package status

import (
	"testing"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"chessPlay/internal/testutil"
	"chessPlay/rules"
)

type fakeBoard struct {
	turn                                            chess.Color
	checkmate, stalemate, material, threefold, draw bool
}

func (b fakeBoard) Turn() chess.Color            { return b.turn }
func (b fakeBoard) IsCheckmate() bool            { return b.checkmate }
func (b fakeBoard) IsStalemate() bool            { return b.stalemate }
func (b fakeBoard) IsInsufficientMaterial() bool { return b.material }
func (b fakeBoard) IsThreefoldRepetition() bool  { return b.threefold }
func (b fakeBoard) IsDraw() bool                 { return b.draw }

func playing(t *testing.T) *Machine {
	t.Helper()
	m := NewMachine(zerolog.Nop())
	testutil.AssertNoError(t, m.Start())
	return m
}

func TestCheckForEndPriority(t *testing.T) {
	tests := []struct {
		name  string
		board fakeBoard
		want  Snapshot
	}{
		{"ongoing", fakeBoard{turn: chess.White}, Snapshot{Status: Playing}},
		{
			"checkmate beats everything",
			fakeBoard{turn: chess.Black, checkmate: true, stalemate: true, material: true, draw: true},
			Snapshot{Status: Checkmate, Reason: ByCheckmate, Winner: WhiteWins},
		},
		{
			"black mates",
			fakeBoard{turn: chess.White, checkmate: true},
			Snapshot{Status: Checkmate, Reason: ByCheckmate, Winner: BlackWins},
		},
		{
			"stalemate before material",
			fakeBoard{turn: chess.White, stalemate: true, material: true, draw: true},
			Snapshot{Status: Stalemate, Reason: ByStalemate, Winner: Drawn},
		},
		{
			"material before repetition",
			fakeBoard{material: true, threefold: true, draw: true},
			Snapshot{Status: Draw, Reason: ByInsufficientMaterial, Winner: Drawn},
		},
		{
			"repetition before generic draw",
			fakeBoard{threefold: true, draw: true},
			Snapshot{Status: Draw, Reason: ByThreefoldRepetition, Winner: Drawn},
		},
		{
			"generic draw",
			fakeBoard{draw: true},
			Snapshot{Status: Draw, Reason: ByFiftyMoveRule, Winner: Drawn},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := playing(t)
			got, err := m.CheckForEnd(tt.board)
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, got, tt.want)
			testutil.AssertEqual(t, m.Snapshot(), tt.want)
		})
	}
}

func TestTerminalStatesAbsorb(t *testing.T) {
	m := playing(t)
	mate := Snapshot{Status: Checkmate, Reason: ByCheckmate, Winner: BlackWins}
	_, err := m.CheckForEnd(fakeBoard{turn: chess.White, checkmate: true})
	testutil.AssertNoError(t, err)

	_, err = m.Resign(chess.Black)
	testutil.AssertErrorIs(t, err, ErrFinished)
	_, err = m.Timeout(chess.Black)
	testutil.AssertErrorIs(t, err, ErrFinished)
	_, err = m.Agree()
	testutil.AssertErrorIs(t, err, ErrFinished)
	_, err = m.CheckForEnd(fakeBoard{draw: true})
	testutil.AssertErrorIs(t, err, ErrFinished)
	testutil.AssertErrorIs(t, m.Start(), ErrFinished)

	testutil.AssertEqual(t, m.Snapshot(), mate)

	m.Reset()
	testutil.AssertEqual(t, m.Snapshot(), Snapshot{})
	testutil.AssertNoError(t, m.Start())
}

func TestTimeoutAndResignWinners(t *testing.T) {
	m := playing(t)
	got, err := m.Timeout(chess.White)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got, Snapshot{Status: Timeout, Reason: ByTimeout, Winner: BlackWins})

	m = playing(t)
	got, err = m.Resign(chess.Black)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got, Snapshot{Status: Resigned, Reason: ByResignation, Winner: WhiteWins})
	testutil.AssertEqual(t, got.Winner.Result(), "1-0")

	m = playing(t)
	got, err = m.Agree()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.Winner.Result(), "1/2-1/2")
}

func TestRestore(t *testing.T) {
	m := NewMachine(zerolog.Nop())
	testutil.AssertNoError(t, m.Restore(Snapshot{Status: Playing, Reason: ByTimeout, Winner: WhiteWins}))
	testutil.AssertEqual(t, m.Snapshot(), Snapshot{Status: Playing})

	over := Snapshot{Status: Resigned, Reason: ByResignation, Winner: BlackWins}
	testutil.AssertNoError(t, m.Restore(over))
	testutil.AssertEqual(t, m.Snapshot(), over)

	for _, bad := range []Snapshot{
		{Status: Checkmate, Winner: WhiteWins},
		{Status: Draw, Reason: ByAgreement},
	} {
		testutil.AssertErrorIs(t, m.Restore(bad), ErrInvalidSnapshot)
		testutil.AssertEqual(t, m.Snapshot(), over)
	}
}

func TestTransitionsNeedAGame(t *testing.T) {
	m := NewMachine(zerolog.Nop())
	_, err := m.Resign(chess.White)
	testutil.AssertErrorIs(t, err, ErrNotStarted)
	_, err = m.CheckForEnd(fakeBoard{checkmate: true})
	testutil.AssertErrorIs(t, err, ErrNotStarted)
	testutil.AssertEqual(t, m.Status(), Idle)
}

func TestCheckForEndOnRealBoard(t *testing.T) {
	b := rules.NewBoard()
	for _, mv := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		testutil.AssertNoError(t, b.Apply(b.FindUCI(mv)), mv)
	}
	m := playing(t)
	got, err := m.CheckForEnd(b)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got, Snapshot{Status: Checkmate, Reason: ByCheckmate, Winner: BlackWins})
}

func TestRoundTripNames(t *testing.T) {
	for s := Idle; s <= Resigned; s++ {
		got, err := ParseStatus(s.String())
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, got, s)
	}
	for r := ByCheckmate; r <= ByAgreement; r++ {
		got, err := ParseReason(r.String())
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, got, r)
	}
	testutil.AssertEqual(t, ParseWinner(Drawn.String()), Drawn)
	testutil.AssertTrue(t, Timeout.Terminal())
	testutil.AssertFalse(t, Playing.Terminal())
}
