package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is searched for as coach.yaml.
	ConfigFileName = "coach"
	// EnvPrefix prefixes every environment override (COACH_TIMING_TARGET_SECONDS).
	EnvPrefix = "COACH"
)

// Loader resolves configuration from file, environment and defaults.
type Loader struct {
	v       *viper.Viper
	envFile string
}

// NewLoader creates a loader with its own viper instance.
func NewLoader() *Loader {
	return &Loader{v: viper.New(), envFile: ".env"}
}

// SetEnvFile changes the dotenv file read before environment binding.
// An empty path disables dotenv loading.
func (l *Loader) SetEnvFile(path string) {
	l.envFile = path
}

// Load searches the standard locations for coach.yaml. A missing file is
// not an error.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()

	if err := l.prepare(); err != nil {
		return nil, err
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return l.unmarshal()
}

// LoadWithFile reads an explicit config file, which must exist.
func (l *Loader) LoadWithFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)

	if err := l.prepare(); err != nil {
		return nil, err
	}

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return l.unmarshal()
}

// Viper exposes the underlying instance so commands can bind flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// ConfigFileUsed returns the path of the file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) prepare() error {
	if l.envFile != "" {
		// Existing environment variables win over the dotenv file.
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error reading %s: %w", l.envFile, err)
		}
	}
	l.setupEnvironmentVariables()
	l.setDefaults()
	return nil
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")

	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		l.v.AddConfigPath(filepath.Join(configDir, "coach"))
	} else if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(home, ".config", "coach"))
	}

	l.v.AddConfigPath("/etc/coach")
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("log_color", d.LogColor)

	l.v.SetDefault("server.addr", d.Server.Addr)
	l.v.SetDefault("server.status_interval", d.Server.StatusInterval)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)

	l.v.SetDefault("source.kind", d.Source.Kind)
	l.v.SetDefault("source.dir", d.Source.Dir)
	l.v.SetDefault("source.loop", d.Source.Loop)
	l.v.SetDefault("source.interval", d.Source.Interval)
	l.v.SetDefault("source.device", d.Source.Device)
	l.v.SetDefault("source.width", d.Source.Width)
	l.v.SetDefault("source.height", d.Source.Height)
	l.v.SetDefault("source.mirror", d.Source.Mirror)

	l.v.SetDefault("detector.url", d.Detector.URL)
	l.v.SetDefault("detector.timeout", d.Detector.Timeout)
	l.v.SetDefault("detector.stride", d.Detector.Stride)
	l.v.SetDefault("detector.target_width", d.Detector.TargetWidth)
	l.v.SetDefault("detector.hold_window", d.Detector.HoldWindow)
	l.v.SetDefault("detector.enabled", d.Detector.Enabled)

	l.v.SetDefault("timing.target_seconds", d.Timing.TargetSeconds)
	l.v.SetDefault("timing.warn_low", d.Timing.WarnLow)
	l.v.SetDefault("timing.warn_high", d.Timing.WarnHigh)

	l.v.SetDefault("report.dir", d.Report.Dir)
	l.v.SetDefault("report.db_path", d.Report.DBPath)

	l.v.SetDefault("counter.url", d.Counter.URL)
	l.v.SetDefault("counter.timeout", d.Counter.Timeout)
}
