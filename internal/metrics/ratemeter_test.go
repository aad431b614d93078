package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateMeter_FewerThanTwoSamples(t *testing.T) {
	r := NewRateMeter(DefaultRateWindow)
	assert.Zero(t, r.CurrentRate())

	r.Record(time.Unix(100, 0))
	assert.Zero(t, r.CurrentRate())
}

func TestRateMeter_SteadyRate(t *testing.T) {
	r := NewRateMeter(DefaultRateWindow)
	base := time.Unix(1000, 0)
	for i := 0; i < 31; i++ {
		r.Record(base.Add(time.Duration(i) * time.Second / 30))
	}

	assert.InDelta(t, 30.0, r.CurrentRate(), 1e-6)
}

func TestRateMeter_EvictsOldest(t *testing.T) {
	r := NewRateMeter(DefaultRateWindow)
	base := time.Unix(0, 0)

	// 30 slow frames followed by 60 fast ones: only the fast ones remain.
	for i := 0; i < 30; i++ {
		r.Record(base.Add(time.Duration(i) * time.Second))
	}
	start := base.Add(time.Hour)
	for i := 0; i < 60; i++ {
		r.Record(start.Add(time.Duration(i) * 10 * time.Millisecond))
	}

	assert.Equal(t, 60, r.Samples())
	assert.InDelta(t, 100.0, r.CurrentRate(), 1e-6)
}

func TestRateMeter_ZeroOrNegativeSpan(t *testing.T) {
	r := NewRateMeter(DefaultRateWindow)
	ts := time.Unix(50, 0)
	r.Record(ts)
	r.Record(ts)
	assert.Zero(t, r.CurrentRate())

	r.Reset()
	r.Record(ts)
	r.Record(ts.Add(-time.Second))
	assert.Zero(t, r.CurrentRate())
}
