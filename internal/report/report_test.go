package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/disfluency"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/emotion"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/timing"
)

func TestReport_TimingResult(t *testing.T) {
	tests := []struct {
		elapsed float64
		want    string
	}{
		{330, "Over time by 30.0 s"},
		{270, "Under time by 30.0 s"},
		{300, "Under time by 0.0 s"},
	}
	for _, tt := range tests {
		r := Build(timing.Snapshot{TargetSeconds: 300, ElapsedSeconds: tt.elapsed}, emotion.Tally{}, disfluency.Snapshot{})
		assert.Equal(t, tt.want, r.TimingResult())
		assert.Contains(t, r.Text(), "Timing Result: "+tt.want+"\n")
	}
}

func TestReport_TextFull(t *testing.T) {
	r := Build(
		timing.Snapshot{TargetSeconds: 300, ElapsedSeconds: 312.46},
		emotion.Tally{
			Counts: []emotion.LabelCount{{Label: "happy", Count: 30}, {Label: "neutral", Count: 9}, {Label: "surprise", Count: 1}},
			Total:  40,
		},
		disfluency.Snapshot{Count: 3, Timeline: []float64{1.23, 45.67}},
	)

	want := "Toastmaster Toolbox - Speech Report\n" +
		"\n" +
		"Target Time: 300.0 s\n" +
		"Actual Time: 312.5 s\n" +
		"Timing Result: Over time by 12.5 s\n" +
		"\n" +
		"Total Disfluencies: 3\n" +
		"Disfluency Times: 1.2s, 45.7s\n" +
		"\n" +
		"Facial Expression Summary:\n" +
		"  happy   :   30 (75.0 %)\n" +
		"  neutral :    9 (22.5 %)\n" +
		"  surprise:    1 ( 2.5 %)"
	assert.Equal(t, want, r.Text())
}

func TestReport_TextEmpty(t *testing.T) {
	r := Build(timing.Snapshot{TargetSeconds: 60}, emotion.Tally{}, disfluency.Snapshot{})
	text := r.Text()
	assert.Contains(t, text, "Disfluency Times: (none)\n")
	assert.Contains(t, text, "Total Disfluencies: 0")
	assert.Contains(t, text, "Facial Expression Summary:\n  No emotion samples collected.")
}

func TestReport_BuildCopiesSnapshots(t *testing.T) {
	tl := []float64{1}
	counts := []emotion.LabelCount{{Label: "sad", Count: 1}}
	r := Build(timing.Snapshot{}, emotion.Tally{Counts: counts, Total: 1}, disfluency.Snapshot{Count: 1, Timeline: tl})

	tl[0] = 9
	counts[0].Count = 9
	assert.Equal(t, []float64{1}, r.DisfluencyTimes)
	assert.Equal(t, 1, r.Emotions.Counts[0].Count)
}

func TestReport_NewAssignsID(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := New(timing.Snapshot{}, emotion.Tally{}, disfluency.Snapshot{}, now)
	b := New(timing.Snapshot{}, emotion.Tally{}, disfluency.Snapshot{}, now)

	require.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, now, a.CreatedAt)
	assert.Equal(t, a.Text(), b.Text())
}
