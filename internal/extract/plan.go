// Package extract samples frames from a finished recording into numbered
// still images.
package extract

import (
	"fmt"

	"github.com/bryanchriswhite/PacedRecorder/internal/config"
)

// Strategy selects how frame indices are chosen
type Strategy string

const (
	EvenlySpaced Strategy = config.MethodEvenlySpaced
	Interval     Strategy = config.MethodInterval
)

// ParseStrategy validates a configured method name
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case EvenlySpaced, Interval:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown extraction method %q (want %s or %s)", s, EvenlySpaced, Interval)
	}
}

// Plan returns the ordered frame indices to extract from a file of total
// frames. The result is non-decreasing and every index is in [0, total-1].
//
// EvenlySpaced picks floor(i*total/desired) for i in [0, desired), or every
// frame when desired >= total. Interval picks 0, step, 2*step... below total,
// at most desired of them. desired <= 0 or total <= 0 yields an empty plan,
// as does Interval with step <= 0.
func Plan(total, desired int, strategy Strategy, step int) []int {
	if total <= 0 || desired <= 0 {
		return []int{}
	}

	switch strategy {
	case Interval:
		return intervalPlan(total, desired, step)
	default:
		return evenPlan(total, desired)
	}
}

func evenPlan(total, desired int) []int {
	if desired >= total {
		plan := make([]int, total)
		for i := range plan {
			plan[i] = i
		}
		return plan
	}

	plan := make([]int, desired)
	for i := range plan {
		// int64 keeps i*total exact for long recordings
		plan[i] = int(int64(i) * int64(total) / int64(desired))
	}
	return plan
}

func intervalPlan(total, desired, step int) []int {
	if step <= 0 {
		return []int{}
	}
	n := (total-1)/step + 1
	if n > desired {
		n = desired
	}
	plan := make([]int, n)
	for i := range plan {
		plan[i] = i * step
	}
	return plan
}
