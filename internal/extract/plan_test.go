package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_EvenlySpaced(t *testing.T) {
	assert.Equal(t, []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90}, Plan(100, 10, EvenlySpaced, 0))
	assert.Equal(t, []int{0, 3, 6}, Plan(10, 3, EvenlySpaced, 0))
	assert.Equal(t, []int{0}, Plan(7, 1, EvenlySpaced, 0))
}

func TestPlan_EvenlySpacedAllFramesWhenDesiredCoversTotal(t *testing.T) {
	for _, desired := range []int{5, 6, 100} {
		assert.Equal(t, []int{0, 1, 2, 3, 4}, Plan(5, desired, EvenlySpaced, 0), "desired=%d", desired)
	}
}

func TestPlan_EvenlySpacedProperties(t *testing.T) {
	for total := 1; total <= 60; total++ {
		for desired := 1; desired <= 70; desired++ {
			plan := Plan(total, desired, EvenlySpaced, 0)

			want := desired
			if desired >= total {
				want = total
			}
			require.Len(t, plan, want, "total=%d desired=%d", total, desired)
			assert.Equal(t, 0, plan[0])
			for i, idx := range plan {
				assert.GreaterOrEqual(t, idx, 0)
				assert.Less(t, idx, total)
				if i > 0 {
					assert.GreaterOrEqual(t, idx, plan[i-1], "plan must be non-decreasing")
				}
			}
		}
	}
}

func TestPlan_EvenlySpacedLargeTotal(t *testing.T) {
	plan := Plan(1<<40, 4, EvenlySpaced, 0)
	assert.Equal(t, []int{0, 1 << 38, 1 << 39, 3 << 38}, plan)
}

func TestPlan_Interval(t *testing.T) {
	plan := Plan(310, 999, Interval, 30)
	require.Len(t, plan, 11)
	for i, idx := range plan {
		assert.Equal(t, i*30, idx)
	}
	assert.LessOrEqual(t, plan[len(plan)-1], 309)

	assert.Equal(t, []int{0, 30, 60}, Plan(310, 3, Interval, 30), "truncated to desired")
	assert.Equal(t, []int{0}, Plan(20, 10, Interval, 30), "total below step")
	assert.Equal(t, []int{0}, Plan(30, 10, Interval, 30), "index 30 is past the last frame")
	assert.Equal(t, []int{0, 30}, Plan(31, 10, Interval, 30))
}

func TestPlan_Empty(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		desired  int
		strategy Strategy
		step     int
	}{
		{"zero desired", 100, 0, EvenlySpaced, 0},
		{"negative desired", 100, -5, EvenlySpaced, 0},
		{"zero total", 0, 10, EvenlySpaced, 0},
		{"negative total", -1, 10, Interval, 30},
		{"zero step", 100, 10, Interval, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Plan(tt.total, tt.desired, tt.strategy, tt.step)
			assert.NotNil(t, plan)
			assert.Empty(t, plan)
		})
	}
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("interval")
	require.NoError(t, err)
	assert.Equal(t, Interval, s)

	_, err = ParseStrategy("random")
	assert.Error(t, err)
}
