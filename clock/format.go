package clock

import (
	"fmt"
	"time"
)

const (
	// LowTime and CriticalTime are display thresholds.
	LowTime      = 30 * time.Second
	CriticalTime = 10 * time.Second
)

// TimeControl is a starting time plus a per-move increment.
type TimeControl struct {
	ID        string
	Name      string
	Initial   time.Duration
	Increment time.Duration
}

var timeControls = []TimeControl{
	{ID: "blitz-3", Name: "3m", Initial: 3 * time.Minute},
	{ID: "blitz-5", Name: "5m", Initial: 5 * time.Minute},
	{ID: "rapid-10", Name: "10m", Initial: 10 * time.Minute},
	{ID: "blitz-3-2", Name: "3m+2s", Initial: 3 * time.Minute, Increment: 2 * time.Second},
	{ID: "blitz-5-3", Name: "5m+3s", Initial: 5 * time.Minute, Increment: 3 * time.Second},
	{ID: "rapid-10-5", Name: "10m+5s", Initial: 10 * time.Minute, Increment: 5 * time.Second},
}

// TimeControls lists the built-in time controls.
func TimeControls() []TimeControl {
	return append([]TimeControl(nil), timeControls...)
}

// LookupTimeControl finds a built-in time control by ID.
func LookupTimeControl(id string) (TimeControl, bool) {
	for _, tc := range timeControls {
		if tc.ID == id {
			return tc, true
		}
	}
	return TimeControl{}, false
}

// Format renders d as m:ss, or h:mm:ss from an hour up. Partial seconds
// round up so a clock never shows 0:00 while time remains.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int((d + time.Second - 1) / time.Second)
	minutes, seconds := total/60, total%60
	if minutes >= 60 {
		return fmt.Sprintf("%d:%02d:%02d", minutes/60, minutes%60, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
