// Package cmd implements the coach command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/config"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

// flagKeys maps command line flags to configuration keys. Flags only
// override the config when set explicitly.
var flagKeys = map[string]string{
	"log-level":    "log_level",
	"log-color":    "log_color",
	"addr":         "server.addr",
	"source":       "source.kind",
	"frames":       "source.dir",
	"loop":         "source.loop",
	"device":       "source.device",
	"mirror":       "source.mirror",
	"detector-url": "detector.url",
	"stride":       "detector.stride",
	"target":       "timing.target_seconds",
	"report-dir":   "report.dir",
	"db":           "report.db_path",
	"url":          "counter.url",
	"timeout":      "counter.timeout",
}

// app carries state shared by all subcommands of one invocation.
type app struct {
	cfgFile string
	envFile string
	cfg     *config.Config
}

// NewRootCommand builds the coach command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "coach",
		Short: "Live presentation coaching telemetry",
		Long: `coach watches a presenter through a camera or a replayed image directory,
tracks the dominant facial expression, times the talk against a target and
counts filler words reported by an Ah-Counter.

Examples:
  coach serve --frames ./frames --detector-url http://localhost:9000
  coach counter bump --url http://192.168.1.20:5000
  coach report show report_20250101_120000.txt`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd.Flags())
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is coach.yaml in ., $XDG_CONFIG_HOME/coach, /etc/coach)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before COACH_* variables are read")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error, silent)")
	root.PersistentFlags().Bool("log-color", true, "enable colored log output")

	root.AddCommand(newServeCommand(a), newCounterCommand(a), newReportCommand(a))
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) loadConfig(flags *pflag.FlagSet) error {
	loader := config.NewLoader()
	loader.SetEnvFile(a.envFile)

	v := loader.Viper()
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind --%s: %w", name, err)
			}
		}
	}

	var err error
	if a.cfgFile != "" {
		a.cfg, err = loader.LoadWithFile(a.cfgFile)
	} else {
		a.cfg, err = loader.Load()
	}
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(a.cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Init(level, os.Stderr, a.cfg.LogColor)
	logger.SetLevel(level)

	if used := loader.ConfigFileUsed(); used != "" {
		logger.Debug("Config", "Loaded %s", used)
	}
	return nil
}
