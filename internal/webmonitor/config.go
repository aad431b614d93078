package webmonitor

import (
	"time"
)

// Config defines the runtime configuration for the telemetry server.
type Config struct {
	Addr           string
	StatusInterval time.Duration // Push period for SSE/WebSocket status
	CORSOrigin     string
	ReportDir      string
}

// DefaultConfig returns a config matching the Ah-Counter's expected endpoint.
func DefaultConfig() Config {
	return Config{
		Addr:           ":5000",
		StatusInterval: 500 * time.Millisecond,
		CORSOrigin:     "*",
		ReportDir:      "./reports",
	}
}
