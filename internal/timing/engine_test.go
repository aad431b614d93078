package timing

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/disfluency"
)

func newEngine(t *testing.T) (*Engine, *disfluency.Ledger) {
	t.Helper()
	l := disfluency.NewLedger()
	e, err := NewEngine(DefaultConfig(), l)
	require.NoError(t, err)
	return e, l
}

func TestEngine_Transitions(t *testing.T) {
	e, _ := newEngine(t)
	t0 := time.Unix(1000, 0)
	assert.Equal(t, Idle, e.State())

	assert.False(t, e.Stop(t0), "stop from idle is a no-op")
	assert.True(t, e.Start(t0))
	assert.False(t, e.Start(t0.Add(5*time.Second)), "start while running keeps the original start")

	snap := e.Tick(t0.Add(10 * time.Second))
	assert.Equal(t, Running, snap.State)
	assert.Equal(t, 10.0, snap.ElapsedSeconds)

	assert.True(t, e.Stop(t0.Add(12*time.Second)))
	snap = e.Tick(t0.Add(60 * time.Second))
	assert.Equal(t, Stopped, snap.State)
	assert.False(t, snap.Running)
	assert.Equal(t, 12.0, snap.ElapsedSeconds, "elapsed frozen after stop")

	// Restart from Stopped begins a fresh session.
	assert.True(t, e.Start(t0.Add(100*time.Second)))
	assert.Equal(t, 1.0, e.Tick(t0.Add(101*time.Second)).ElapsedSeconds)

	e.Reset()
	snap = e.Tick(t0.Add(200 * time.Second))
	assert.Equal(t, Idle, snap.State)
	assert.Zero(t, snap.ElapsedSeconds)
}

func TestEngine_DisfluencyTimelineOnlyWhileRunning(t *testing.T) {
	e, l := newEngine(t)
	t0 := time.Unix(0, 0)
	clock := t0
	l.SetClock(func() time.Time { return clock })

	// Counted but not placed on the timeline outside a session.
	l.Increment()
	assert.Equal(t, disfluency.Snapshot{Count: 1, Timeline: []float64{}}, l.Snapshot())

	e.Start(t0)
	clock = t0.Add(1200 * time.Millisecond)
	l.Increment()
	clock = t0.Add(3400 * time.Millisecond)
	l.Increment()

	snap := l.Snapshot()
	assert.Equal(t, 3, snap.Count)
	assert.Equal(t, []float64{1.2, 3.4}, snap.Timeline)

	e.Stop(t0.Add(5 * time.Second))
	clock = t0.Add(6 * time.Second)
	l.Increment()
	assert.Len(t, l.Snapshot().Timeline, 2)

	// A new session clears the timeline but keeps the count.
	e.Start(t0.Add(10 * time.Second))
	snap = l.Snapshot()
	assert.Equal(t, 4, snap.Count)
	assert.Empty(t, snap.Timeline)

	e.Reset()
	assert.Equal(t, 0, l.Count())
}

// An event whose clock reading happens before Start wins the ledger lock
// must not land on the new session's timeline.
func TestEngine_IdleEventRacingStartStaysOffTimeline(t *testing.T) {
	e, l := newEngine(t)
	t0 := time.Unix(500, 0)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	l.SetClock(func() time.Time {
		once.Do(func() {
			close(entered)
			<-release
		})
		return t0
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.Increment()
	}()
	<-entered
	go func() {
		defer wg.Done()
		e.Start(t0.Add(time.Millisecond))
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	snap := l.Snapshot()
	assert.Equal(t, 1, snap.Count)
	assert.Empty(t, snap.Timeline)
	assert.Equal(t, Running, e.State())
}

func TestEngine_EventStampedBeforeStartIsCountedOnly(t *testing.T) {
	e, l := newEngine(t)
	t0 := time.Unix(500, 0)
	l.SetClock(func() time.Time { return t0 })

	e.Start(t0.Add(time.Second))
	l.Increment()
	assert.False(t, e.RecordDisfluency(t0))

	snap := l.Snapshot()
	assert.Equal(t, 1, snap.Count)
	assert.Empty(t, snap.Timeline)
}

func TestEngine_ConcurrentEventsKeepTimelineOrdered(t *testing.T) {
	e, l := newEngine(t)
	e.Start(time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Increment()
			}
		}()
	}
	wg.Wait()

	snap := l.Snapshot()
	assert.Equal(t, 400, snap.Count)
	assert.Len(t, snap.Timeline, 400)
	assert.True(t, sort.Float64sAreSorted(snap.Timeline))
}

func TestEngine_SetTargetRejectsNegative(t *testing.T) {
	e, _ := newEngine(t)
	err := e.SetTarget(Config{TargetSeconds: -1, WarnLow: 0.5, WarnHigh: 0.9})
	assert.ErrorIs(t, err, ErrNegativeTarget)
	assert.Equal(t, DefaultConfig(), e.Config())

	_, err = NewEngine(Config{TargetSeconds: -5}, nil)
	assert.ErrorIs(t, err, ErrNegativeTarget)

	require.NoError(t, e.SetTarget(Config{TargetSeconds: 60, WarnLow: 0.5, WarnHigh: 0.8}))
	assert.Equal(t, 60.0, e.Config().TargetSeconds)
}

func TestEngine_ZeroTargetNeverDivides(t *testing.T) {
	e, err := NewEngine(Config{TargetSeconds: 0, WarnLow: 0.75, WarnHigh: 0.9}, nil)
	require.NoError(t, err)
	t0 := time.Unix(0, 0)
	e.Start(t0)

	snap := e.Tick(t0.Add(time.Minute))
	assert.Zero(t, snap.Fraction)
	assert.Equal(t, BandLow, snap.Band)
	assert.Equal(t, "01:00 / 00:00", snap.Display)
}

func TestEngine_SnapshotDisplay(t *testing.T) {
	e, _ := newEngine(t)
	t0 := time.Unix(0, 0)
	e.Start(t0)

	snap := e.Tick(t0.Add(240 * time.Second))
	assert.Equal(t, "04:00 / 05:00", snap.Display)
	assert.Equal(t, 800, snap.Progress)
	assert.Equal(t, BandMedium, snap.Band)
	assert.Equal(t, "#ffc107", snap.Color)

	snap = e.Tick(t0.Add(400 * time.Second))
	assert.Equal(t, MaxFraction, snap.Fraction)
	assert.Equal(t, 1200, snap.Progress)
	assert.Equal(t, BandHigh, snap.Band)
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		frac float64
		want Band
	}{
		{0, BandLow},
		{0.74, BandLow},
		{0.75, BandMedium},
		{0.89, BandMedium},
		{0.90, BandHigh},
		{1.2, BandHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BandFor(tt.frac, 0.75, 0.90), "frac=%v", tt.frac)
	}

	// Inverted thresholds degrade to low/high without panicking.
	assert.Equal(t, BandHigh, BandFor(0.6, 0.9, 0.5))
	assert.Equal(t, BandLow, BandFor(0.4, 0.9, 0.5))
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00", FormatClock(0))
	assert.Equal(t, "00:00", FormatClock(-3))
	assert.Equal(t, "01:05", FormatClock(64.6))
	assert.Equal(t, "00:02", FormatClock(2.5), "half rounds to even")
	assert.Equal(t, "61:01", FormatClock(3661))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	b, err := Stopped.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "stopped", string(b))
	assert.Equal(t, "State(9)", State(9).String())
}
