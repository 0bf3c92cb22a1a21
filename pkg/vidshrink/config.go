// Package vidshrink provides a high-level API for configuring compression runs.
package vidshrink

import (
	"fmt"
	"time"

	"github.com/user/vidshrink/pkg/ladder"
	"github.com/user/vidshrink/pkg/orchestrator"
	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/ports"
)

// Preset names a starting ladder.
type Preset string

const (
	PresetDefault Preset = "default"
	PresetFast    Preset = "fast"   // skips the quality-preserving rung
	PresetCompat  Preset = "compat" // simple fallback only
)

// ParsePreset converts a preset name; the empty string is PresetDefault.
func ParsePreset(s string) (Preset, error) {
	switch Preset(s) {
	case "", PresetDefault:
		return PresetDefault, nil
	case PresetFast, PresetCompat:
		return Preset(s), nil
	}
	return "", fmt.Errorf("unknown preset %q (want default, fast or compat)", s)
}

// Config represents the configuration for a compression run.
type Config struct {
	// Ladder
	Plans                  []pipeline.CompressionPlan
	MinSavings             float64 // Fraction of the source an output must save
	AcceptLargerOnLastRung bool

	// Timing
	SeekTimeout    time.Duration
	AttemptTimeout time.Duration // 0 disables the per-attempt ceiling

	// Thumbnail
	ThumbnailEnabled      bool
	ThumbnailAt           time.Duration
	ThumbnailFormat       ports.ImageFormat
	ThumbnailQuality      int
	ThumbnailMaxDimension int // 0 keeps native dimensions

	// Batch
	Workers int // Files compressed concurrently
}

// ConfigBuilder provides a fluent interface for building Config.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder creates a ConfigBuilder with the default preset.
func NewConfigBuilder() *ConfigBuilder {
	return NewPresetBuilder(PresetDefault)
}

// NewPresetBuilder creates a ConfigBuilder starting from preset. Unknown
// presets fall back to the default ladder.
func NewPresetBuilder(preset Preset) *ConfigBuilder {
	cfg := defaults()
	switch preset {
	case PresetFast:
		cfg.Plans = ladder.Without(cfg.Plans, pipeline.MethodQualityPreserving)
	case PresetCompat:
		cfg.Plans = ladder.Without(cfg.Plans,
			pipeline.MethodQualityPreserving, pipeline.MethodBalanced, pipeline.MethodAggressive)
	}
	return &ConfigBuilder{config: cfg}
}

func defaults() Config {
	orch := orchestrator.DefaultConfig()
	return Config{
		Plans:                  orch.Plans,
		MinSavings:             orch.Policy.MinSavings,
		AcceptLargerOnLastRung: orch.Policy.AcceptLargerOnLastRung,

		SeekTimeout:    orch.SeekTimeout,
		AttemptTimeout: orch.AttemptTimeout,

		ThumbnailEnabled:      orch.Thumbnail.Enabled,
		ThumbnailAt:           orch.Thumbnail.At,
		ThumbnailFormat:       orch.Thumbnail.Format,
		ThumbnailQuality:      orch.Thumbnail.Quality,
		ThumbnailMaxDimension: orch.Thumbnail.MaxDimension,

		Workers: 2,
	}
}

// Build returns the final Config, applying constraints.
func (b *ConfigBuilder) Build() Config {
	cfg := b.config
	cfg.Plans = append([]pipeline.CompressionPlan(nil), cfg.Plans...)

	if cfg.MinSavings < 0 {
		cfg.MinSavings = 0
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ThumbnailQuality < 1 || cfg.ThumbnailQuality > 100 {
		cfg.ThumbnailQuality = 80
	}
	if cfg.ThumbnailAt < 0 {
		cfg.ThumbnailAt = 0
	}

	return cfg
}

// WithPlans replaces the whole ladder.
func (b *ConfigBuilder) WithPlans(plans []pipeline.CompressionPlan) *ConfigBuilder {
	b.config.Plans = append([]pipeline.CompressionPlan(nil), plans...)
	return b
}

// WithStrategy replaces the rung with the same method, or appends it.
func (b *ConfigBuilder) WithStrategy(plan pipeline.CompressionPlan) *ConfigBuilder {
	for i, p := range b.config.Plans {
		if p.Method == plan.Method {
			b.config.Plans[i] = plan
			return b
		}
	}
	b.config.Plans = append(b.config.Plans, plan)
	return b
}

// WithoutMethods removes rungs from the ladder.
func (b *ConfigBuilder) WithoutMethods(methods ...pipeline.Method) *ConfigBuilder {
	b.config.Plans = ladder.Without(b.config.Plans, methods...)
	return b
}

// WithMinSavings sets the fraction of the source size an output must save.
func (b *ConfigBuilder) WithMinSavings(fraction float64) *ConfigBuilder {
	b.config.MinSavings = fraction
	return b
}

// WithAcceptLargerOnLastRung keeps the last rung's output even when it
// saves nothing.
func (b *ConfigBuilder) WithAcceptLargerOnLastRung(accept bool) *ConfigBuilder {
	b.config.AcceptLargerOnLastRung = accept
	return b
}

// WithSeekTimeout bounds a single decoder seek.
func (b *ConfigBuilder) WithSeekTimeout(d time.Duration) *ConfigBuilder {
	b.config.SeekTimeout = d
	return b
}

// WithAttemptTimeout bounds one attempt. Use 0 to disable.
func (b *ConfigBuilder) WithAttemptTimeout(d time.Duration) *ConfigBuilder {
	b.config.AttemptTimeout = d
	return b
}

// WithThumbnail enables or disables poster extraction.
func (b *ConfigBuilder) WithThumbnail(enabled bool) *ConfigBuilder {
	b.config.ThumbnailEnabled = enabled
	return b
}

// WithThumbnailAt sets the poster timestamp.
func (b *ConfigBuilder) WithThumbnailAt(at time.Duration) *ConfigBuilder {
	b.config.ThumbnailAt = at
	return b
}

// WithThumbnailFormat sets the poster encoding.
func (b *ConfigBuilder) WithThumbnailFormat(format ports.ImageFormat) *ConfigBuilder {
	b.config.ThumbnailFormat = format
	return b
}

// WithThumbnailQuality sets the poster quality (1-100).
func (b *ConfigBuilder) WithThumbnailQuality(quality int) *ConfigBuilder {
	b.config.ThumbnailQuality = quality
	return b
}

// WithThumbnailMaxDimension caps the poster's longer side. Use 0 to keep
// native dimensions.
func (b *ConfigBuilder) WithThumbnailMaxDimension(px int) *ConfigBuilder {
	b.config.ThumbnailMaxDimension = px
	return b
}

// WithWorkers sets how many files are compressed concurrently.
func (b *ConfigBuilder) WithWorkers(n int) *ConfigBuilder {
	b.config.Workers = n
	return b
}

// Validate checks the ladder.
func (c Config) Validate() error {
	if c.MinSavings >= 1 {
		return fmt.Errorf("min savings %.2f must be below 1", c.MinSavings)
	}
	return ladder.Validate(c.Plans)
}

// ToOrchestratorConfig converts Config to orchestrator.Config.
func (c Config) ToOrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		Plans: append([]pipeline.CompressionPlan(nil), c.Plans...),
		Policy: ladder.Policy{
			MinSavings:             c.MinSavings,
			AcceptLargerOnLastRung: c.AcceptLargerOnLastRung,
		},
		SeekTimeout:    c.SeekTimeout,
		AttemptTimeout: c.AttemptTimeout,
		Thumbnail: orchestrator.ThumbnailConfig{
			Enabled:      c.ThumbnailEnabled,
			At:           c.ThumbnailAt,
			Format:       c.ThumbnailFormat,
			Quality:      c.ThumbnailQuality,
			MaxDimension: c.ThumbnailMaxDimension,
		},
	}
}
