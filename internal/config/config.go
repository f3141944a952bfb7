package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultFile is looked up in the working directory when no path is given.
	DefaultFile = ".testrig.yaml"
	// EnvPrefix marks environment overrides.
	EnvPrefix = "TESTRIG_"

	maxConfigFileSize = 1 << 20
)

// Config is the full set of testrig settings.
type Config struct {
	Output  Output  `koanf:"output"`
	Bench   Bench   `koanf:"bench"`
	Server  Server  `koanf:"server"`
	Log     Log     `koanf:"log"`
	Run     Run     `koanf:"run"`
	Metrics Metrics `koanf:"metrics"`
}

// Output controls report rendering.
type Output struct {
	Format string `koanf:"format"` // terminal, markdown, json, yaml
	Theme  string `koanf:"theme"`  // default, orca, mono
	Width  int    `koanf:"width"`  // 0 means the terminal width
	// Interactive enables the live progress view when stdout is a terminal.
	Interactive bool `koanf:"interactive"`
}

// Bench holds default benchmark options.
type Bench struct {
	Rounds         int  `koanf:"rounds"`
	Warmup         int  `koanf:"warmup"`
	Iterations     int  `koanf:"iterations"`
	FilterOutliers bool `koanf:"filter_outliers"`
}

// Server holds test server timing defaults.
type Server struct {
	StartupTimeout time.Duration `koanf:"startup_timeout"`
	GracePeriod    time.Duration `koanf:"grace_period"`
	PollInterval   time.Duration `koanf:"poll_interval"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Run selects tests and failure behavior.
type Run struct {
	Match       []string `koanf:"match"`
	Skip        []string `koanf:"skip"`
	Tags        []string `koanf:"tags"`
	ExcludeTags []string `koanf:"exclude_tags"`
	FailFast    bool     `koanf:"fail_fast"`
}

// Metrics configures the prometheus textfile export.
type Metrics struct {
	Textfile string `koanf:"textfile"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Output: Output{Format: "terminal", Theme: "default", Interactive: true},
		Bench:  Bench{Rounds: 5, Warmup: 1, Iterations: 100},
		Server: Server{
			StartupTimeout: 10 * time.Second,
			GracePeriod:    2 * time.Second,
			PollInterval:   50 * time.Millisecond,
		},
		Log: Log{Level: "warn", Format: "console"},
	}
}

// Load resolves the configuration. An empty path means DefaultFile, which
// may be absent; an explicit path must exist. overrides are dotted keys
// ("output.format") applied last.
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	content, err := readFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case err != nil:
		return nil, err
	default:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	for key, v := range overrides {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("failed to apply override %s: %w", key, err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyConventions()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s is %d bytes, limit is %d", path, info.Size(), maxConfigFileSize)
	}
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// envKey maps TESTRIG_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func (c *Config) applyConventions() {
	if os.Getenv("NO_COLOR") != "" {
		c.Output.Theme = "mono"
	}
	if ci := os.Getenv("CI"); ci == "true" || ci == "1" {
		c.Output.Theme = "mono"
		c.Output.Interactive = false
	}
}

var (
	validFormats   = []string{"terminal", "markdown", "md", "json", "yaml"}
	validThemes    = []string{"default", "orca", "mono"}
	validLevels    = []string{"debug", "info", "warn", "error"}
	validLogFormat = []string{"console", "json"}
)

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, allowed []string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: %q is not one of %s", field, value, strings.Join(allowed, ", ")))
	}
	check("output.format", c.Output.Format, validFormats)
	check("output.theme", c.Output.Theme, validThemes)
	check("log.level", c.Log.Level, validLevels)
	check("log.format", c.Log.Format, validLogFormat)

	if c.Output.Width < 0 {
		errs = append(errs, fmt.Errorf("output.width: must not be negative, got %d", c.Output.Width))
	}
	if c.Bench.Rounds <= 0 {
		errs = append(errs, fmt.Errorf("bench.rounds: must be positive, got %d", c.Bench.Rounds))
	}
	if c.Bench.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("bench.iterations: must be positive, got %d", c.Bench.Iterations))
	}
	if c.Bench.Warmup < 0 {
		errs = append(errs, fmt.Errorf("bench.warmup: must not be negative, got %d", c.Bench.Warmup))
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"server.startup_timeout", c.Server.StartupTimeout},
		{"server.grace_period", c.Server.GracePeriod},
		{"server.poll_interval", c.Server.PollInterval},
	} {
		if d.v <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %s", d.name, d.v))
		}
	}
	return errors.Join(errs...)
}
