// Package pipeline wires the per-frame path (source, rate meter, detection
// scheduler, stabilizer, emotion accumulator) and the disfluency event path
// (ledger, timing engine) around shared session state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/detection"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/disfluency"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/emotion"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/logger"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/metrics"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/report"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/source"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/timing"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/pkg/types"
)

// readRetryDelay spaces retries after a failed source read.
const readRetryDelay = 50 * time.Millisecond

// Config holds pipeline parameters.
type Config struct {
	Stride           int
	TargetWidth      int
	HoldWindow       time.Duration
	DetectorTimeout  time.Duration
	Mirror           bool
	DetectionEnabled bool
	Timing           timing.Config
}

// DefaultConfig returns the stock pipeline parameters.
func DefaultConfig() Config {
	return Config{
		Stride:           detection.DefaultStride,
		TargetWidth:      detection.DefaultTargetWidth,
		HoldWindow:       detection.DefaultHoldWindow,
		DetectorTimeout:  2 * time.Second,
		Mirror:           true,
		DetectionEnabled: true,
		Timing:           timing.DefaultConfig(),
	}
}

// Cycle summarizes one ProcessFrame call.
type Cycle struct {
	FrameIndex uint64
	Ran        bool
	Held       bool // Estimate came from the hold window
	Estimate   *detection.Estimate
	Scores     types.Scores
	Err        error
}

// Pipeline owns all session state.
type Pipeline struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cfg         Config
	source      source.Source
	metrics     *metrics.Metrics
	rate        *metrics.RateMeter
	scheduler   *detection.Scheduler
	stabilizer  *detection.Stabilizer
	throttle    *detection.Throttle
	accumulator *emotion.Accumulator
	ledger      *disfluency.Ledger
	engine      *timing.Engine
	clock       atomic.Pointer[func() time.Time]

	mirror           atomic.Bool
	detectionEnabled atomic.Bool
	exhausted        atomic.Bool

	mu   sync.RWMutex
	last Cycle

	processChan chan *types.Frame
}

// New builds a pipeline. src may be nil when frames are pushed through
// ProcessFrame directly. det may be nil to run without a detector.
func New(cfg Config, src source.Source, det detection.Detector, m *metrics.Metrics) (*Pipeline, error) {
	if m == nil {
		m = metrics.New()
	}

	ledger := disfluency.NewLedger()
	engine, err := timing.NewEngine(cfg.Timing, ledger)
	if err != nil {
		return nil, fmt.Errorf("invalid timing config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		ctx:         ctx,
		cancel:      cancel,
		cfg:         cfg,
		source:      src,
		metrics:     m,
		rate:        metrics.NewRateMeter(metrics.DefaultRateWindow),
		scheduler:   detection.NewScheduler(det, cfg.Stride, cfg.TargetWidth, cfg.DetectorTimeout),
		stabilizer:  detection.NewStabilizer(cfg.HoldWindow),
		throttle:    detection.NewThrottle(detection.DefaultDiagnosticInterval),
		accumulator: emotion.NewAccumulator(),
		ledger:      ledger,
		engine:      engine,
		processChan: make(chan *types.Frame, 1),
	}
	p.SetClock(time.Now)
	p.mirror.Store(cfg.Mirror)
	p.detectionEnabled.Store(cfg.DetectionEnabled && det != nil)

	ledger.Subscribe(func(disfluency.Event) {
		m.DisfluencyEvents.Add(1)
	})

	return p, nil
}

// SetClock overrides the time source (tests). Safe while running.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.clock.Store(&now)
	p.ledger.SetClock(now)
}

func (p *Pipeline) now() time.Time { return (*p.clock.Load())() }

// Start launches the reader and processing goroutines.
func (p *Pipeline) Start() error {
	if p.source == nil {
		return errors.New("pipeline has no frame source")
	}

	p.wg.Add(2)
	go p.readFrames()
	go p.processFrames()

	logger.Info("Pipeline", "Started (stride=%d, width=%d, hold=%s, mirror=%v, detection=%v)",
		p.cfg.Stride, p.cfg.TargetWidth, p.cfg.HoldWindow, p.Mirror(), p.DetectionEnabled())
	return nil
}

// HasSource reports whether frames can be pulled with Start.
func (p *Pipeline) HasSource() bool { return p.source != nil }

// Shutdown stops the goroutines and closes the source.
func (p *Pipeline) Shutdown() error {
	p.cancel()
	p.wg.Wait()
	if p.source != nil {
		return p.source.Close()
	}
	return nil
}

// readFrames pulls frames as fast as the source allows. Each frame feeds
// the rate meter and the timing tick, then is handed to processing without
// blocking, so a slow detector only costs detection freshness.
func (p *Pipeline) readFrames() {
	defer p.wg.Done()

	for {
		if p.ctx.Err() != nil {
			return
		}

		frame, err := p.source.Read(p.ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return
			case errors.Is(err, source.ErrExhausted):
				p.exhausted.Store(true)
				logger.Info("Reader", "Frame source exhausted, pipeline idle")
				return
			}

			p.metrics.ReadErrors.Add(1)
			logger.Warn("Reader", "Read error: %v", err)
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}

		p.metrics.FramesRead.Add(1)
		p.rate.Record(frame.Timestamp)
		p.metrics.SetFPS(p.rate.CurrentRate())
		p.engine.Tick(p.now())

		select {
		case p.processChan <- frame:
		default:
			p.metrics.FramesDropped.Add(1)
		}
	}
}

func (p *Pipeline) processFrames() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case frame := <-p.processChan:
			p.ProcessFrame(p.ctx, frame)
		}
	}
}

// ProcessFrame runs one detection cycle: scheduler, stabilizer, accumulator.
// Cycles must not overlap; the background loop calls it from one goroutine.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame *types.Frame) Cycle {
	start := time.Now()
	defer func() {
		p.metrics.FramesProcessed.Add(1)
		p.metrics.UpdateProcessLatency(time.Since(start))
	}()

	if !p.detectionEnabled.Load() {
		p.accumulator.Observe(nil)
		cycle := Cycle{FrameIndex: p.scheduler.Counter()}
		p.setLast(cycle)
		return cycle
	}

	// Only stride cycles look at pixels; skip the full-frame copy otherwise.
	img := frame.Image
	if p.mirror.Load() && p.scheduler.Due() {
		img = imaging.FlipH(img)
	}

	res := p.scheduler.Next(ctx, img)
	now := p.now()

	if res.Ran {
		p.metrics.DetectionRuns.Add(1)
		p.metrics.UpdateDetectionLatency(res.Latency)
	} else {
		p.metrics.DetectionSkips.Add(1)
	}
	if res.Err != nil {
		p.metrics.DetectorErrors.Add(1)
		if ok, suppressed := p.throttle.Allow(now); ok {
			logger.Warn("Detection", "%v (suppressed %d)", res.Err, suppressed)
		}
	}

	cycle := Cycle{FrameIndex: res.FrameIndex, Ran: res.Ran, Err: res.Err}
	if est, ok := p.stabilizer.Update(res.Detection, now); ok {
		cycle.Estimate = &est
		cycle.Held = res.Detection == nil
		cycle.Scores = est.Detection.Scores
		if cycle.Held {
			p.metrics.EstimatesHeld.Add(1)
		}
	} else {
		p.metrics.EstimatesAbsent.Add(1)
	}

	p.accumulator.Observe(cycle.Scores)
	p.setLast(cycle)
	return cycle
}

func (p *Pipeline) setLast(c Cycle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = c
}

// LastCycle returns the most recent cycle.
func (p *Pipeline) LastCycle() Cycle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Engine returns the timing engine.
func (p *Pipeline) Engine() *timing.Engine { return p.engine }

// Ledger returns the disfluency ledger.
func (p *Pipeline) Ledger() *disfluency.Ledger { return p.ledger }

// Accumulator returns the emotion accumulator.
func (p *Pipeline) Accumulator() *emotion.Accumulator { return p.accumulator }

// Metrics returns the metrics sink.
func (p *Pipeline) Metrics() *metrics.Metrics { return p.metrics }

// Now returns the pipeline clock reading.
func (p *Pipeline) Now() time.Time { return p.now() }

// Mirror reports whether frames are flipped before detection.
func (p *Pipeline) Mirror() bool { return p.mirror.Load() }

// SetMirror toggles the horizontal flip.
func (p *Pipeline) SetMirror(on bool) { p.mirror.Store(on) }

// DetectionEnabled reports whether the emotion path is active.
func (p *Pipeline) DetectionEnabled() bool { return p.detectionEnabled.Load() }

// SetDetectionEnabled toggles the emotion path. Disabling clears the
// stored estimate so re-enabling starts fresh.
func (p *Pipeline) SetDetectionEnabled(on bool) {
	if p.detectionEnabled.Swap(on) != on && !on {
		p.stabilizer.Clear()
	}
	logger.Info("Pipeline", "Detection enabled=%v", on)
}

// Exhausted reports whether the frame source ran out of frames.
func (p *Pipeline) Exhausted() bool { return p.exhausted.Load() }

// FPS returns the current frame throughput.
func (p *Pipeline) FPS() float64 { return p.rate.CurrentRate() }

// Report builds a report from the current state.
func (p *Pipeline) Report() report.Report {
	now := p.now()
	return report.New(p.engine.Tick(now), p.accumulator.Snapshot(), p.ledger.Snapshot(), now)
}

// ResetAll resets the session and the emotion statistics.
func (p *Pipeline) ResetAll() {
	p.engine.Reset()
	p.accumulator.Reset()
	p.stabilizer.Clear()
}
