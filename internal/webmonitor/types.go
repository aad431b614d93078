package webmonitor

// TargetRequest is the body of POST /api/session/target.
type TargetRequest struct {
	TargetSeconds *float64 `json:"target_seconds"`
	WarnLow       *float64 `json:"warn_low"`
	WarnHigh      *float64 `json:"warn_high"`
}

// ToggleRequest is the body of POST /api/detection and /api/mirror.
type ToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// SaveReportResponse is returned by POST /api/report/save.
type SaveReportResponse struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Archived bool   `json:"archived"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status          string `json:"status"`
	SourceExhausted bool   `json:"source_exhausted"`
	Clients         int    `json:"clients"`
}
