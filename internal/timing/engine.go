// Package timing tracks speech time against a target and maps the
// elapsed/target ratio to a severity band.
package timing

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/disfluency"
)

// ErrNegativeTarget is returned for a target time below zero.
var ErrNegativeTarget = errors.New("target seconds must be >= 0")

// MaxFraction caps elapsed/target so overtime stays displayable.
const MaxFraction = 1.2

// State is the session state.
type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON/YAML.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Band is a discrete urgency level.
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// Color returns the cue color shown for the band.
func (b Band) Color() string {
	switch b {
	case BandHigh:
		return "#f44336"
	case BandMedium:
		return "#ffc107"
	default:
		return "#4caf50"
	}
}

// Config holds the target and warning thresholds (fractions of target).
type Config struct {
	TargetSeconds float64 `json:"target_seconds" yaml:"target_seconds" mapstructure:"target_seconds"`
	WarnLow       float64 `json:"warn_low" yaml:"warn_low" mapstructure:"warn_low"`
	WarnHigh      float64 `json:"warn_high" yaml:"warn_high" mapstructure:"warn_high"`
}

// DefaultConfig returns a five minute target warning at 75% and 90%.
func DefaultConfig() Config {
	return Config{
		TargetSeconds: 300,
		WarnLow:       0.75,
		WarnHigh:      0.90,
	}
}

// Validate rejects a negative target. Threshold ordering is not checked:
// warn_low > warn_high only degrades banding.
func (c Config) Validate() error {
	if c.TargetSeconds < 0 || math.IsNaN(c.TargetSeconds) {
		return fmt.Errorf("%w: got %v", ErrNegativeTarget, c.TargetSeconds)
	}
	return nil
}

// Fraction returns clamp(elapsed/target, 0, MaxFraction), or 0 when target <= 0.
func Fraction(elapsed, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return math.Max(0, math.Min(MaxFraction, elapsed/target))
}

// BandFor maps a fraction to a band.
func BandFor(frac, warnLow, warnHigh float64) Band {
	switch {
	case frac >= warnHigh:
		return BandHigh
	case frac >= warnLow:
		return BandMedium
	default:
		return BandLow
	}
}

// FormatClock renders seconds as MM:SS using rounded whole seconds.
func FormatClock(seconds float64) string {
	s := int(math.RoundToEven(seconds))
	if s < 0 {
		s = 0
	}
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// Snapshot is a point-in-time view of the engine.
type Snapshot struct {
	State          State   `json:"state" yaml:"state"`
	Running        bool    `json:"running" yaml:"running"`
	ElapsedSeconds float64 `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	TargetSeconds  float64 `json:"target_seconds" yaml:"target_seconds"`
	WarnLow        float64 `json:"warn_low" yaml:"warn_low"`
	WarnHigh       float64 `json:"warn_high" yaml:"warn_high"`
	Fraction       float64 `json:"fraction" yaml:"fraction"`
	Band           Band    `json:"band" yaml:"band"`
	Color          string  `json:"color" yaml:"color"`
	Progress       int     `json:"progress" yaml:"progress"` // Fraction in permille
	Display        string  `json:"display" yaml:"display"`
}

// Engine is the speech-timing state machine. Every transition updates the
// ledger's session window while holding the engine lock (lock order:
// engine, then ledger), so the ledger never sees a state the engine is
// not in.
type Engine struct {
	mu      sync.Mutex
	state   State
	start   time.Time
	elapsed float64
	cfg     Config
	ledger  *disfluency.Ledger
}

// NewEngine creates an idle engine. A nil ledger gets a private one.
func NewEngine(cfg Config, ledger *disfluency.Ledger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ledger == nil {
		ledger = disfluency.NewLedger()
	}
	return &Engine{cfg: cfg, ledger: ledger}, nil
}

// Ledger returns the owned ledger.
func (e *Engine) Ledger() *disfluency.Ledger {
	return e.ledger
}

// Start begins a session from Idle or Stopped and clears the occurrence
// timeline. It is a no-op while running. Returns true if it transitioned.
func (e *Engine) Start(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Running {
		return false
	}
	e.state = Running
	e.start = now
	e.elapsed = 0
	e.ledger.OpenSession(now)
	return true
}

// Stop freezes elapsed time. It is a no-op unless running.
func (e *Engine) Stop(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Running {
		return false
	}
	e.elapsed = now.Sub(e.start).Seconds()
	e.state = Stopped
	e.ledger.CloseSession()
	return true
}

// Reset returns to Idle from any state, zeroing elapsed time and the ledger.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = Idle
	e.start = time.Time{}
	e.elapsed = 0
	e.ledger.Reset()
}

// Tick refreshes the displayed elapsed time while running and returns a
// snapshot. It never changes state.
func (e *Engine) Tick(now time.Time) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Running {
		e.elapsed = now.Sub(e.start).Seconds()
	}
	return e.snapshotLocked()
}

// Elapsed returns elapsed seconds at now without mutating the engine.
func (e *Engine) Elapsed(now time.Time) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Running {
		return now.Sub(e.start).Seconds()
	}
	return e.elapsed
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Config returns the current target and thresholds.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetTarget replaces the target and thresholds.
func (e *Engine) SetTarget(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	return nil
}

// RecordDisfluency places an occurrence at `at` on the session timeline
// for an event already counted by the ledger. Nothing is recorded unless
// a session is running and `at` falls inside it.
func (e *Engine) RecordDisfluency(at time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Running || at.Before(e.start) {
		return false
	}
	return e.ledger.RecordOccurrence(at.Sub(e.start).Seconds())
}

func (e *Engine) snapshotLocked() Snapshot {
	frac := Fraction(e.elapsed, e.cfg.TargetSeconds)
	band := BandFor(frac, e.cfg.WarnLow, e.cfg.WarnHigh)
	return Snapshot{
		State:          e.state,
		Running:        e.state == Running,
		ElapsedSeconds: e.elapsed,
		TargetSeconds:  e.cfg.TargetSeconds,
		WarnLow:        e.cfg.WarnLow,
		WarnHigh:       e.cfg.WarnHigh,
		Fraction:       frac,
		Band:           band,
		Color:          band.Color(),
		Progress:       int(frac * 1000),
		Display:        FormatClock(e.elapsed) + " / " + FormatClock(e.cfg.TargetSeconds),
	}
}
