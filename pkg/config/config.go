// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/vidshrink/pkg/adapters/smartruntime"
	"github.com/user/vidshrink/pkg/orchestrator"
	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/ports"
	"github.com/user/vidshrink/pkg/vidshrink"
)

// Config represents the full configuration for vidshrink.
type Config struct {
	// Ladder
	Preset                 string           `yaml:"preset"`
	MinSavings             float64          `yaml:"min_savings"`
	AcceptLargerOnLastRung bool             `yaml:"accept_larger_on_last_rung"`
	Skip                   []string         `yaml:"skip"`
	Strategies             []StrategyConfig `yaml:"strategies"`

	// Timing
	SeekTimeoutMs     int `yaml:"seek_timeout_ms"`
	AttemptTimeoutSec int `yaml:"attempt_timeout_sec"`

	// Runtime selection
	Runtime     string `yaml:"runtime"`
	UseBrowser  bool   `yaml:"use_browser"`
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
	ChromePath  string `yaml:"chrome_path"`

	// Thumbnail
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`

	// Batch
	Workers   int `yaml:"workers"`
	JobTTLSec int `yaml:"job_ttl_sec"`

	// Output
	OutputDir   string `yaml:"output_dir"`
	MetricsFile string `yaml:"metrics_file"`
	SummaryFile string `yaml:"summary_file"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Debug
	Debug    bool   `yaml:"debug"`
	DebugDir string `yaml:"debug_dir"`
}

// ThumbnailConfig represents poster extraction settings.
type ThumbnailConfig struct {
	Enabled      bool   `yaml:"enabled"`
	AtMs         int    `yaml:"at_ms"`
	Format       string `yaml:"format"`
	Quality      int    `yaml:"quality"`
	MaxDimension int    `yaml:"max_dimension"`
}

// StrategyConfig overrides one rung of the ladder. Unset fields keep the
// preset's values; an unknown method appends a new rung.
type StrategyConfig struct {
	Method              string   `yaml:"method"`
	Scale               *float64 `yaml:"scale"`
	FrameRate           *int     `yaml:"frame_rate"`
	FrameSkip           *int     `yaml:"frame_skip"`
	Candidates          []string `yaml:"candidates"`
	Audio               *bool    `yaml:"audio"`
	AllowRuntimeDefault *bool    `yaml:"allow_runtime_default"`
	Bitrate             *int     `yaml:"bitrate"`
	QualityScore        *int     `yaml:"quality_score"`
	MaxFrames           *int     `yaml:"max_frames"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		// Ladder
		Preset:     string(vidshrink.PresetDefault),
		MinSavings: 0.05,

		// Timing
		SeekTimeoutMs:     5000,
		AttemptTimeoutSec: 600,

		// Runtime selection
		Runtime: string(smartruntime.BackendAuto),

		// Thumbnail
		Thumbnail: ThumbnailConfig{
			Enabled: true,
			AtMs:    1000,
			Format:  "jpg",
			Quality: 80,
		},

		// Batch
		Workers:   2,
		JobTTLSec: 3600,

		// Output
		OutputDir: ".",

		// Logging
		LogLevel:  "info",
		LogFormat: "console",

		// Debug
		DebugDir: "./debug",
	}
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration, including the resulting ladder.
func (c Config) Validate() error {
	if _, err := vidshrink.ParsePreset(c.Preset); err != nil {
		return err
	}
	if _, err := smartruntime.ParseBackend(c.Runtime); err != nil {
		return err
	}
	if c.MinSavings < 0 || c.MinSavings >= 1 {
		return fmt.Errorf("min_savings %.2f out of range [0,1)", c.MinSavings)
	}
	if c.SeekTimeoutMs <= 0 {
		return fmt.Errorf("seek_timeout_ms must be positive")
	}
	if c.AttemptTimeoutSec < 0 {
		return fmt.Errorf("attempt_timeout_sec must not be negative")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	switch c.Thumbnail.Format {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("unknown thumbnail format %q", c.Thumbnail.Format)
	}
	if c.Thumbnail.Quality < 1 || c.Thumbnail.Quality > 100 {
		return fmt.Errorf("thumbnail quality %d out of range 1-100", c.Thumbnail.Quality)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	for _, s := range c.Strategies {
		if s.Method == "" {
			return fmt.Errorf("strategy override without method")
		}
	}
	return c.Build().Validate()
}

// Build applies the file settings to a preset builder.
func (c Config) Build() vidshrink.Config {
	preset, _ := vidshrink.ParsePreset(c.Preset)
	builder := vidshrink.NewPresetBuilder(preset)

	skip := make([]pipeline.Method, len(c.Skip))
	for i, m := range c.Skip {
		skip[i] = pipeline.Method(m)
	}
	builder.WithoutMethods(skip...)

	current := builder.Build().Plans
	for _, s := range c.Strategies {
		builder.WithStrategy(s.apply(current))
	}

	return builder.
		WithMinSavings(c.MinSavings).
		WithAcceptLargerOnLastRung(c.AcceptLargerOnLastRung).
		WithSeekTimeout(time.Duration(c.SeekTimeoutMs) * time.Millisecond).
		WithAttemptTimeout(time.Duration(c.AttemptTimeoutSec) * time.Second).
		WithThumbnail(c.Thumbnail.Enabled).
		WithThumbnailAt(time.Duration(c.Thumbnail.AtMs) * time.Millisecond).
		WithThumbnailFormat(ports.ParseImageFormat(normalizeFormat(c.Thumbnail.Format))).
		WithThumbnailQuality(c.Thumbnail.Quality).
		WithThumbnailMaxDimension(c.Thumbnail.MaxDimension).
		WithWorkers(c.Workers).
		Build()
}

// ToOrchestratorConfig converts Config to orchestrator.Config.
func (c Config) ToOrchestratorConfig() orchestrator.Config {
	return c.Build().ToOrchestratorConfig()
}

// JobTTL returns how long finished jobs are kept.
func (c Config) JobTTL() time.Duration {
	return time.Duration(c.JobTTLSec) * time.Second
}

// apply overlays the override on the rung with the same method in base.
func (s StrategyConfig) apply(base []pipeline.CompressionPlan) pipeline.CompressionPlan {
	plan := pipeline.CompressionPlan{
		Method:    pipeline.Method(s.Method),
		Scale:     1,
		FrameRate: 30,
		FrameSkip: 1,
	}
	for _, p := range base {
		if p.Method == plan.Method {
			plan = p
			break
		}
	}

	if s.Scale != nil {
		plan.Scale = *s.Scale
	}
	if s.FrameRate != nil {
		plan.FrameRate = *s.FrameRate
	}
	if s.FrameSkip != nil {
		plan.FrameSkip = *s.FrameSkip
	}
	if s.Candidates != nil {
		plan.Candidates = append([]string(nil), s.Candidates...)
	}
	if s.Audio != nil {
		plan.Audio = *s.Audio
	}
	if s.AllowRuntimeDefault != nil {
		plan.AllowRuntimeDefault = *s.AllowRuntimeDefault
	}
	if s.Bitrate != nil {
		plan.VideoBitsPerSecond = *s.Bitrate
	}
	if s.QualityScore != nil {
		plan.QualityScore = *s.QualityScore
	}
	if s.MaxFrames != nil {
		plan.MaxFrames = *s.MaxFrames
	}
	return plan
}

func normalizeFormat(s string) string {
	if s == "jpeg" {
		return "jpg"
	}
	return s
}
