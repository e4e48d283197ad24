package capture

import (
	"math"
	"time"
)

// PacingState is the per-iteration timing scratch of the capture loop
type PacingState struct {
	Target  time.Duration
	Work    time.Duration
	Sleep   time.Duration
	Overrun bool
}

// Interval returns 1/fps as a duration
func Interval(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

// Pace computes the compensated sleep for one iteration. Work at or past the
// target yields zero sleep so a late loop does not fall further behind.
func Pace(target, work time.Duration) PacingState {
	p := PacingState{Target: target, Work: work}
	if remaining := target - work; remaining > 0 {
		p.Sleep = remaining
	} else {
		p.Overrun = true
	}
	return p
}

// FramesPerReport returns round(fps), at least 1
func FramesPerReport(fps float64) int {
	n := int(math.Round(fps))
	if n < 1 {
		return 1
	}
	return n
}
