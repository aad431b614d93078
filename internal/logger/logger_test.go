package logger

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"warning", WARN, false},
		{"error", ERROR, false},
		{"none", SILENT, false},
		{"loud", INFO, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_ModuleFieldAndFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, &buf, false)

	l.Info("Pipeline", "hidden %d", 1)
	assert.Empty(t, buf.String())

	l.Warn("Pipeline", "detector failed: %s", "boom")
	out := buf.String()
	assert.Contains(t, out, "module=Pipeline")
	assert.Contains(t, out, "detector failed: boom")
	assert.Contains(t, out, "level=warning")
}

func TestLogger_Silent(t *testing.T) {
	var buf bytes.Buffer
	l := New(SILENT, &buf, false)
	l.Error("Main", "nothing")
	assert.Empty(t, buf.String())
	assert.Equal(t, "SILENT", l.GetLevel().String())
}

func TestLogger_SilentDiscardsUntilRaised(t *testing.T) {
	var buf bytes.Buffer
	l := New(DEBUG, &buf, false)

	l.SetLevel(SILENT)
	assert.Equal(t, io.Discard, l.base.Out)
	for _, log := range []func(string, string, ...interface{}){l.Debug, l.Info, l.Warn, l.Error} {
		log("Main", "dropped")
	}
	assert.Empty(t, buf.String())

	l.SetLevel(INFO)
	assert.Equal(t, &buf, l.base.Out)
	l.Info("Main", "back")
	assert.Contains(t, buf.String(), "back")
	assert.NotContains(t, buf.String(), "dropped")
}
