package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/config"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/logger"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/metrics"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/pipeline"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/report"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/source"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/webmonitor"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the coaching pipeline and its HTTP surface",
		Long: `Start the frame pipeline and serve live telemetry.

Endpoints:
  GET/POST /disfluency           Ah-Counter count
  GET      /api/status           status snapshot
  GET      /api/status/stream    SSE status stream (JSON or protobuf)
  GET      /api/telemetry/ws     WebSocket status stream
  POST     /api/session/start    start/stop/reset/target session control
  GET      /api/report           end-of-session report
  GET      /metrics              Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(a.cfg)
			if err != nil {
				return err
			}
			return svc.run()
		},
	}

	c.Flags().String("addr", ":5000", "HTTP listen address")
	c.Flags().String("source", source.KindDir, "frame source (dir, camera)")
	c.Flags().String("frames", "", "directory of images to replay (source=dir)")
	c.Flags().Bool("loop", false, "replay the frame directory forever")
	c.Flags().Int("device", 0, "capture device index (source=camera)")
	c.Flags().Bool("mirror", true, "flip frames horizontally before detection")
	c.Flags().String("detector-url", "", "emotion detector base URL (empty disables detection)")
	c.Flags().Int("stride", 3, "run detection on every Nth frame")
	c.Flags().Float64("target", 300, "target speech length in seconds")
	c.Flags().String("report-dir", "./reports", "directory for saved reports")
	c.Flags().String("db", "", "SQLite report archive path (empty disables)")
	return c
}

// service owns everything serve starts.
type service struct {
	pipeline *pipeline.Pipeline
	archive  *report.SQLiteStore
	server   *webmonitor.Server
	http     *http.Server
}

func newService(cfg *config.Config) (*service, error) {
	src, err := openSource(cfg)
	if err != nil {
		return nil, err
	}

	p, err := pipeline.New(cfg.Pipeline(), src, cfg.NewDetector(), metrics.New())
	if err != nil {
		if src != nil {
			_ = src.Close()
		}
		return nil, err
	}
	if cfg.Detector.URL == "" {
		logger.Warn("Main", "No detector.url configured, emotion detection disabled")
	}

	var archive *report.SQLiteStore
	if cfg.Report.DBPath != "" {
		archive, err = report.OpenSQLite(cfg.Report.DBPath)
		if err != nil {
			_ = p.Shutdown()
			return nil, err
		}
	}

	srv := webmonitor.NewServer(cfg.WebMonitor(), p, report.NewFileStore(cfg.Report.Dir), archive)
	return &service{
		pipeline: p,
		archive:  archive,
		server:   srv,
		http: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// openSource returns nil when no frame directory is configured, leaving the
// timing and disfluency surfaces running without video.
func openSource(cfg *config.Config) (source.Source, error) {
	if cfg.Source.Kind == source.KindDir && cfg.Source.Dir == "" {
		logger.Warn("Main", "No source.dir configured, running without frames")
		return nil, nil
	}
	src, err := source.Open(cfg.Source.Kind, cfg.SourceOptions())
	if err != nil {
		return nil, fmt.Errorf("open %s source: %w", cfg.Source.Kind, err)
	}
	return src, nil
}

func (s *service) run() error {
	if s.pipeline.HasSource() {
		if err := s.pipeline.Start(); err != nil {
			s.close()
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- webmonitor.Serve(s.http)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("Main", "Received %s, shutting down", sig)
	case serveErr = <-errCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Streaming handlers end once the broadcaster closes their channels.
	s.server.Close()
	if err := s.http.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("Main", "HTTP shutdown: %v", err)
	}
	s.close()
	return serveErr
}

func (s *service) close() {
	if err := s.pipeline.Shutdown(); err != nil {
		logger.Warn("Main", "Pipeline shutdown: %v", err)
	}
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			logger.Warn("Main", "Archive close: %v", err)
		}
	}
}
