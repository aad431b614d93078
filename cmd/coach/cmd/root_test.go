package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/config"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/disfluency"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/emotion"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/report"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/timing"
)

// run executes the command tree from an empty working directory.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err = root.Execute()
	return buf.String(), err
}

func TestRootCommandHelp(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Available Commands:")
	assert.Contains(t, out, "serve")
	assert.Contains(t, out, "counter")
	assert.Contains(t, out, "report")
}

func TestRootCommandRejectsBadConfig(t *testing.T) {
	_, err := run(t, "report", "list", "--log-level", "loud")
	assert.Error(t, err)
}

func TestCounterCommands(t *testing.T) {
	ledger := disfluency.NewLedger()
	ts := httptest.NewServer(disfluency.Handler(ledger))
	defer ts.Close()

	out, err := run(t, "counter", "get", "--url", ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)

	out, err = run(t, "counter", "bump", "--url", ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
	assert.Equal(t, 1, ledger.Count())
}

func TestCounterUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	_, err := run(t, "counter", "bump", "--url", ts.URL, "--timeout", "500ms")
	require.Error(t, err)
	assert.ErrorIs(t, err, disfluency.ErrUnreachable)
}

func sampleReport(now time.Time) report.Report {
	return report.New(
		timing.Snapshot{TargetSeconds: 120, ElapsedSeconds: 130},
		emotion.Tally{Counts: []emotion.LabelCount{{Label: "happy", Count: 3}}, Total: 3},
		disfluency.Snapshot{Count: 2, Timeline: []float64{10, 20}},
		now,
	)
}

func TestReportShowFile(t *testing.T) {
	dir := t.TempDir()
	rep := sampleReport(time.Now())
	path, err := report.NewFileStore(dir).Save("talk.txt", rep.Text())
	require.NoError(t, err)

	out, err := run(t, "report", "show", "talk.txt", "--report-dir", dir)
	require.NoError(t, err)
	assert.Equal(t, rep.Text(), out)

	out, err = run(t, "report", "show", path, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "path: "+path)
	assert.Contains(t, out, "text: |")

	_, err = run(t, "report", "show", "missing.txt", "--report-dir", dir)
	assert.ErrorIs(t, err, report.ErrNotFound)

	_, err = run(t, "report", "show", path, "--format", "xml")
	assert.Error(t, err)
}

func TestReportArchive(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "reports.db")

	archive, err := report.OpenSQLite(dbPath)
	require.NoError(t, err)
	rep := sampleReport(time.Now())
	require.NoError(t, archive.Save(context.Background(), rep, filepath.Join(dir, "a.txt")))
	require.NoError(t, archive.Close())

	out, err := run(t, "report", "show", rep.ID, "--db", dbPath, "--report-dir", dir)
	require.NoError(t, err)
	assert.Equal(t, rep.Text(), out)

	out, err = run(t, "report", "show", rep.ID, "--db", dbPath, "--report-dir", dir, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "id: "+rep.ID)
	assert.Contains(t, out, "disfluencies: 2")

	out, err = run(t, "report", "list", "--db", dbPath, "--report-dir", dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ID"), out)
	assert.Contains(t, out, rep.ID)
}

func TestNewServiceWithoutFrames(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Report.Dir = t.TempDir()
	cfg.Report.DBPath = filepath.Join(cfg.Report.Dir, "reports.db")

	svc, err := newService(cfg)
	require.NoError(t, err)
	defer svc.close()
	defer svc.server.Close()

	assert.False(t, svc.pipeline.HasSource())
	assert.False(t, svc.pipeline.DetectionEnabled())

	rec := httptest.NewRecorder()
	svc.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/disfluency", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())
}

func TestNewServiceBadFrameDir(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Source.Dir = filepath.Join(t.TempDir(), "nope")

	_, err := newService(cfg)
	assert.Error(t, err)
}
