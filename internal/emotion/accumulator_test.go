package emotion

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/pkg/types"
)

func scores(pairs ...interface{}) types.Scores {
	out := types.Scores{}
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, types.LabelScore{Label: pairs[i].(string), Score: pairs[i+1].(float64)})
	}
	return out
}

func TestAccumulator_FreshSnapshotIsEmpty(t *testing.T) {
	a := NewAccumulator()
	tally := a.Snapshot()
	assert.True(t, tally.Empty())
	assert.Empty(t, tally.Counts)
	assert.Zero(t, tally.Percent(3))
}

func TestAccumulator_CountsDominantLabelOncePerFrame(t *testing.T) {
	a := NewAccumulator()
	a.Observe(scores("happy", 0.7, "sad", 0.2, "angry", 0.1))
	a.Observe(scores("happy", 0.6, "sad", 0.4))
	a.Observe(scores("sad", 0.9, "happy", 0.1))
	a.Observe(types.Scores{})

	tally := a.Snapshot()
	assert.Equal(t, 3, tally.Total)
	assert.Equal(t, []LabelCount{{"happy", 2}, {"sad", 1}}, tally.Counts)
	assert.InDelta(t, 66.666, tally.Percent(2), 0.01)
}

func TestAccumulator_TieGoesToFirstLabel(t *testing.T) {
	a := NewAccumulator()
	a.Observe(scores("surprise", 0.5, "fear", 0.5))
	assert.Equal(t, []LabelCount{{"surprise", 1}}, a.Snapshot().Counts)
}

func TestAccumulator_EqualCountsKeepFirstSeenOrder(t *testing.T) {
	a := NewAccumulator()
	a.Observe(scores("neutral", 1.0))
	a.Observe(scores("happy", 1.0))
	a.Observe(scores("happy", 1.0))
	a.Observe(scores("neutral", 1.0))
	a.Observe(scores("sad", 1.0))

	assert.Equal(t, []LabelCount{{"neutral", 2}, {"happy", 2}, {"sad", 1}}, a.Snapshot().Counts)
}

func TestAccumulator_CurrentScores(t *testing.T) {
	a := NewAccumulator()
	a.Observe(scores("neutral", 0.1, "happy", 0.8, "sad", 0.1))
	assert.Equal(t, scores("happy", 0.8, "neutral", 0.1, "sad", 0.1), a.CurrentScores())

	// An empty mapping clears the live view but not the tally.
	a.Observe(nil)
	assert.Empty(t, a.CurrentScores())
	assert.Equal(t, 1, a.Snapshot().Total)

	a.Reset()
	assert.True(t, a.Snapshot().Empty())
}

func TestAccumulator_TotalEqualsSumOfCounts(t *testing.T) {
	labels := []string{"happy", "sad", "angry", "neutral"}
	properties := gopter.NewProperties(nil)

	properties.Property("total samples equals the sum of per-label counts", prop.ForAll(
		func(frames [][]float64) bool {
			a := NewAccumulator()
			for _, frame := range frames {
				s := types.Scores{}
				for i, v := range frame {
					s = append(s, types.LabelScore{Label: labels[i%len(labels)], Score: v})
				}
				a.Observe(s)
			}

			tally := a.Snapshot()
			sum := 0
			for _, c := range tally.Counts {
				sum += c.Count
			}
			return sum == tally.Total
		},
		gen.SliceOf(gen.SliceOf(gen.Float64Range(0, 1))),
	))

	properties.TestingRun(t)
}
