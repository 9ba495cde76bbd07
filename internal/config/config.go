// Package config provides configuration management for madness.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (MADNESS_*, "__" between section and key)
// 3. Project config (.madness/config.yaml in cwd, or $MADNESS_CONFIG)
// 4. Home config (~/.madness/config.yaml)
// 5. Defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/madness-retro/madness/internal/formatter"
	"github.com/madness-retro/madness/internal/instructions"
	"github.com/madness-retro/madness/internal/lifecycle"
	"github.com/madness-retro/madness/internal/match"
	"github.com/madness-retro/madness/internal/session"
	"github.com/madness-retro/madness/internal/types"
	"github.com/madness-retro/madness/internal/validate"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "MADNESS_"

	// EnvConfig names an explicit project config file.
	EnvConfig = EnvPrefix + "CONFIG"

	// envSectionSep separates section and key in variable names.
	envSectionSep = "__"

	configDirName  = ".madness"
	configFileName = "config.yaml"

	maxConfigFileSize = 1024 * 1024
)

// ErrInvalidConfig is returned when a loaded value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all madness configuration.
type Config struct {
	// Output controls the default output format (table, json, yaml).
	Output string `yaml:"output" json:"output"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose" json:"verbose"`

	Paths PathsConfig `yaml:"paths" json:"paths"`

	// Match holds the matcher point weights and tier cutoffs.
	Match match.Weights `yaml:"match" json:"match"`

	// Judgment holds the batch confidence deltas.
	Judgment lifecycle.Deltas `yaml:"judgment" json:"judgment"`

	Compliance match.Thresholds `yaml:"compliance" json:"compliance"`

	Session session.Options `yaml:"session" json:"session"`

	Inject instructions.Options `yaml:"inject" json:"inject"`

	Validate ValidateConfig `yaml:"validate" json:"validate"`

	Log LogConfig `yaml:"log" json:"log"`

	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// PathsConfig holds store and document locations. Relative paths resolve
// against the project root.
type PathsConfig struct {
	// MemoryDir holds the asset stores and the evolution log.
	// Default: memory
	MemoryDir string `yaml:"memory_dir" json:"memory_dir"`

	// RetroDir holds the facet cache and project state.
	// Default: .retro
	RetroDir string `yaml:"retro_dir" json:"retro_dir"`

	// InstructionFile is the document rules are injected into.
	// Default: CLAUDE.md
	InstructionFile string `yaml:"instruction_file" json:"instruction_file"`

	// TranscriptsDir is where session transcripts are located.
	// Default: ~/.claude/projects
	TranscriptsDir string `yaml:"transcripts_dir" json:"transcripts_dir"`
}

// ValidateConfig holds batch validation settings outside the matcher.
type ValidateConfig struct {
	ExploratoryCategory string `yaml:"exploratory_category" json:"exploratory_category"`
	EvidenceCap         int    `yaml:"evidence_cap" json:"evidence_cap"`
	EscalationThreshold int    `yaml:"escalation_threshold" json:"escalation_threshold"`
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" json:"level"`

	// Format is console or json.
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	// Textfile, when set, receives validation metrics in Prometheus text format.
	Textfile string `yaml:"textfile" json:"textfile"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput    = "table"
	defaultLogLevel  = "info"
	defaultLogFormat = "console"
)

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	v := validate.DefaultOptions()
	return &Config{
		Output: defaultOutput,
		Paths: PathsConfig{
			MemoryDir:       "memory",
			RetroDir:        ".retro",
			InstructionFile: "CLAUDE.md",
			TranscriptsDir:  filepath.Join(homeDir, ".claude", "projects"),
		},
		Match:      v.Weights,
		Judgment:   v.Deltas,
		Compliance: v.Thresholds,
		Session:    session.DefaultOptions(),
		Inject:     instructions.DefaultOptions(),
		Validate: ValidateConfig{
			ExploratoryCategory: string(v.ExploratoryCategory),
			EvidenceCap:         v.EvidenceCap,
			EscalationThreshold: v.EscalationThreshold,
		},
		Log: LogConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// ValidateOptions returns the batch validator settings.
func (c *Config) ValidateOptions() validate.Options {
	return validate.Options{
		Weights:             c.Match,
		Thresholds:          c.Compliance,
		Deltas:              c.Judgment,
		ExploratoryCategory: types.GoalCategory(c.Validate.ExploratoryCategory),
		EvidenceCap:         c.Validate.EvidenceCap,
		EscalationThreshold: c.Validate.EscalationThreshold,
	}
}

// Check rejects values no command can work with.
func (c *Config) Check() error {
	var errs []error
	if _, err := formatter.ParseFormat(c.Output); err != nil {
		errs = append(errs, fmt.Errorf("output: %w", err))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	if c.Inject.MaxRules < 1 {
		errs = append(errs, fmt.Errorf("inject.max_rules must be at least 1, got %d", c.Inject.MaxRules))
	}
	if c.Validate.EvidenceCap < 0 {
		errs = append(errs, fmt.Errorf("validate.evidence_cap must not be negative, got %d", c.Validate.EvidenceCap))
	}
	if c.Match.HighThreshold < c.Match.MediumThreshold || c.Match.MediumThreshold < c.Match.LowThreshold {
		errs = append(errs, fmt.Errorf("match thresholds must satisfy high >= medium >= low"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.madness/config.yaml"
	SourceProject Source = ".madness/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// Resolved is one configured key and the layer that set it.
type Resolved struct {
	Key    string `json:"key" yaml:"key"`
	Value  any    `json:"value" yaml:"value"`
	Source Source `json:"source" yaml:"source"`
}

type layer struct {
	source Source
	k      *koanf.Koanf
}

// Loaded is the effective configuration plus where each non-default key came from.
type Loaded struct {
	*Config
	layers []layer
}

// Sources lists every key set by a file, the environment or a flag, sorted
// by key. Keys not listed hold their defaults.
func (l *Loaded) Sources() []Resolved {
	seen := map[string]Resolved{}
	for _, ly := range l.layers {
		for _, key := range ly.k.Keys() {
			seen[key] = Resolved{Key: key, Value: ly.k.Get(key), Source: ly.source}
		}
	}
	out := make([]Resolved, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults.
// flagOverrides maps dotted keys (inject.max_rules) to values.
func Load(flagOverrides map[string]any) (*Loaded, error) {
	var layers []layer

	for _, f := range []struct {
		path   string
		source Source
	}{
		{homeConfigPath(), SourceHome},
		{projectConfigPath(), SourceProject},
	} {
		k, err := loadFromPath(f.path)
		if err != nil {
			return nil, err
		}
		if k != nil {
			layers = append(layers, layer{source: f.source, k: k})
		}
	}

	envK := koanf.New(".")
	if err := envK.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	layers = append(layers, layer{source: SourceEnv, k: envK})

	flagK := koanf.New(".")
	for key, v := range flagOverrides {
		if err := flagK.Set(key, v); err != nil {
			return nil, fmt.Errorf("apply flag %s: %w", key, err)
		}
	}
	layers = append(layers, layer{source: SourceFlag, k: flagK})

	merged := koanf.New(".")
	for _, ly := range layers {
		if err := merged.Merge(ly.k); err != nil {
			return nil, fmt.Errorf("merge %s config: %w", ly.source, err)
		}
	}

	cfg := Default()
	if err := merged.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return &Loaded{Config: cfg, layers: layers}, nil
}

// envKey maps MADNESS_INJECT__MAX_RULES to inject.max_rules. The config
// file override variable is not a key.
func envKey(s string) string {
	if s == EnvConfig {
		return ""
	}
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, envSectionSep, ".")
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, configDirName, configFileName)
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv(EnvConfig)); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, configDirName, configFileName)
}

// loadFromPath parses a YAML file. A missing file yields nil.
func loadFromPath(path string) (*koanf.Koanf, error) {
	if path == "" {
		return nil, nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config %s exceeds %d bytes", path, maxConfigFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return k, nil
}
