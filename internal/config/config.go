// Package config loads coach-server settings from a YAML file, COACH_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/detection"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/logger"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/pipeline"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/source"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/timing"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/webmonitor"
)

// Validation errors
var (
	ErrInvalidStride      = errors.New("detector.stride must be at least 1")
	ErrInvalidTargetWidth = errors.New("detector.target_width must be at least 1")
	ErrInvalidHoldWindow  = errors.New("detector.hold_window must be positive")
	ErrInvalidSourceKind  = errors.New("unknown source.kind")
)

// Config is the full coach-server configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogColor bool   `mapstructure:"log_color" yaml:"log_color"`

	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Source   SourceConfig   `mapstructure:"source" yaml:"source"`
	Detector DetectorConfig `mapstructure:"detector" yaml:"detector"`
	Timing   timing.Config  `mapstructure:"timing" yaml:"timing"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
	Counter  CounterConfig  `mapstructure:"counter" yaml:"counter"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	StatusInterval time.Duration `mapstructure:"status_interval" yaml:"status_interval"`
	CORSOrigin     string        `mapstructure:"cors_origin" yaml:"cors_origin"`
}

// SourceConfig selects and configures the frame source.
type SourceConfig struct {
	Kind     string        `mapstructure:"kind" yaml:"kind"`
	Dir      string        `mapstructure:"dir" yaml:"dir"`
	Loop     bool          `mapstructure:"loop" yaml:"loop"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Device   int           `mapstructure:"device" yaml:"device"`
	Width    int           `mapstructure:"width" yaml:"width"`
	Height   int           `mapstructure:"height" yaml:"height"`
	Mirror   bool          `mapstructure:"mirror" yaml:"mirror"`
}

// DetectorConfig configures the emotion detector and its scheduling.
type DetectorConfig struct {
	URL         string        `mapstructure:"url" yaml:"url"` // Empty disables detection
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Stride      int           `mapstructure:"stride" yaml:"stride"`
	TargetWidth int           `mapstructure:"target_width" yaml:"target_width"`
	HoldWindow  time.Duration `mapstructure:"hold_window" yaml:"hold_window"`
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
}

// ReportConfig configures report persistence.
type ReportConfig struct {
	Dir    string `mapstructure:"dir" yaml:"dir"`
	DBPath string `mapstructure:"db_path" yaml:"db_path"` // Empty disables the SQLite archive
}

// CounterConfig points the Ah-Counter client at a running server.
type CounterConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	pc := pipeline.DefaultConfig()
	wc := webmonitor.DefaultConfig()

	return &Config{
		LogLevel: "info",
		LogColor: true,
		Server: ServerConfig{
			Addr:           wc.Addr,
			StatusInterval: wc.StatusInterval,
			CORSOrigin:     wc.CORSOrigin,
		},
		Source: SourceConfig{
			Kind:     source.KindDir,
			Interval: 33 * time.Millisecond,
			Width:    1280,
			Height:   720,
			Mirror:   pc.Mirror,
		},
		Detector: DetectorConfig{
			Timeout:     pc.DetectorTimeout,
			Stride:      pc.Stride,
			TargetWidth: pc.TargetWidth,
			HoldWindow:  pc.HoldWindow,
			Enabled:     pc.DetectionEnabled,
		},
		Timing: pc.Timing,
		Report: ReportConfig{
			Dir: wc.ReportDir,
		},
		Counter: CounterConfig{
			URL:     "http://127.0.0.1:5000",
			Timeout: 3 * time.Second,
		},
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if err := c.Timing.Validate(); err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	if c.Detector.Stride < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidStride, c.Detector.Stride)
	}
	if c.Detector.TargetWidth < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidTargetWidth, c.Detector.TargetWidth)
	}
	if c.Detector.HoldWindow <= 0 {
		return fmt.Errorf("%w (got %s)", ErrInvalidHoldWindow, c.Detector.HoldWindow)
	}
	switch c.Source.Kind {
	case source.KindDir, source.KindCamera:
	default:
		return fmt.Errorf("%w %q", ErrInvalidSourceKind, c.Source.Kind)
	}
	return nil
}

// Pipeline converts to pipeline parameters.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Stride:           c.Detector.Stride,
		TargetWidth:      c.Detector.TargetWidth,
		HoldWindow:       c.Detector.HoldWindow,
		DetectorTimeout:  c.Detector.Timeout,
		Mirror:           c.Source.Mirror,
		DetectionEnabled: c.Detector.Enabled,
		Timing:           c.Timing,
	}
}

// SourceOptions converts to frame source options.
func (c *Config) SourceOptions() source.Options {
	return source.Options{
		Dir:      c.Source.Dir,
		Loop:     c.Source.Loop,
		Interval: c.Source.Interval,
		Device:   c.Source.Device,
		Width:    c.Source.Width,
		Height:   c.Source.Height,
	}
}

// WebMonitor converts to HTTP server settings.
func (c *Config) WebMonitor() webmonitor.Config {
	return webmonitor.Config{
		Addr:           c.Server.Addr,
		StatusInterval: c.Server.StatusInterval,
		CORSOrigin:     c.Server.CORSOrigin,
		ReportDir:      c.Report.Dir,
	}
}

// NewDetector builds the remote detector, or nil when no URL is configured.
func (c *Config) NewDetector() detection.Detector {
	if c.Detector.URL == "" {
		return nil
	}
	return detection.NewRemoteDetector(c.Detector.URL, c.Detector.Timeout)
}
