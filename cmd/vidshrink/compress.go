package main

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ideamans/go-l10n"

	"github.com/user/vidshrink/pkg/adapters/filesink"
	"github.com/user/vidshrink/pkg/adapters/ggrenderer"
	"github.com/user/vidshrink/pkg/adapters/nullsink"
	"github.com/user/vidshrink/pkg/adapters/osfilesystem"
	"github.com/user/vidshrink/pkg/adapters/prommetrics"
	"github.com/user/vidshrink/pkg/adapters/smartdecoder"
	"github.com/user/vidshrink/pkg/config"
	"github.com/user/vidshrink/pkg/jobs"
	"github.com/user/vidshrink/pkg/orchestrator"
	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/ports"
	"github.com/user/vidshrink/pkg/summarizer"
)

// CompressCmd defines the compress subcommand.
type CompressCmd struct {
	CommonFlags

	// Required arguments
	Inputs []string `arg:"" type:"existingfile" help:"Video files to compress."`
	Output string   `short:"o" help:"Output directory (default: config output_dir or current directory)."`

	// Ladder options (override config)
	MinSavings     *float64       `help:"Fraction of the original size an output must save (default: 0.05)."`
	AcceptLarger   bool           `help:"Keep the last rung's output even when it is not smaller."`
	SeekTimeout    *time.Duration `help:"Timeout for a single decoder seek."`
	AttemptTimeout *time.Duration `help:"Timeout for one ladder attempt (0 disables)."`
	Workers        *int           `short:"w" help:"Number of files compressed concurrently."`

	// Thumbnail options
	NoThumbnail     bool           `help:"Skip poster extraction."`
	ThumbnailAt     *time.Duration `help:"Poster timestamp (default: 1s)."`
	ThumbnailFormat *string        `help:"Poster format (jpg, png, webp)."`

	// Reports
	MetricsFile string `help:"Write Prometheus metrics to this text file."`
	Summary     string `short:"s" help:"Write a Markdown summary to this file."`

	// Debug options
	Debug    bool   `short:"d" help:"Enable debug output."`
	DebugDir string `help:"Directory for debug output (default: ./debug)."`
}

// fileOutcome is what the summary needs about one input. The result is
// kept without its encoded bytes.
type fileOutcome struct {
	size   int64
	output string
	result pipeline.CompressionResult
	err    error
}

// Run executes the compress command.
func (cmd *CompressCmd) Run() error {
	cfg, err := cmd.buildConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	settings := cfg.Build()
	orchConfig := settings.ToOrchestratorConfig()

	log := newLogger(cfg, cmd.Quiet)

	ctx, cancel := signalContext(log)
	defer cancel()

	// Create adapters
	fs := osfilesystem.New()
	renderer := ggrenderer.New()

	runtime, _, release, err := openRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer release()

	decoder, decInfo := smartdecoder.New(fs, smartdecoder.Options{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Logger:      log.WithComponent("decoder"),
	})

	var metrics ports.Metrics
	var prom *prommetrics.Metrics
	if cfg.MetricsFile != "" {
		prom = prommetrics.New()
		metrics = prom
	}

	if err := fs.MkdirAll(cfg.OutputDir); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	// Job store
	store := jobs.NewStore(cfg.JobTTL())
	go store.RunJanitor(ctx, janitorInterval)

	ids := make([]string, len(cmd.Inputs))
	for i, input := range cmd.Inputs {
		ids[i] = store.Create(input).ID
	}

	paths := newOutputPaths(cfg.OutputDir, cmd.Inputs)

	var mu sync.Mutex
	outcomes := make(map[string]*fileOutcome, len(ids))

	runErr := store.RunAll(ctx, settings.Workers, ids, func(ctx context.Context, job jobs.Job, progress jobs.ProgressFunc) (jobs.Result, error) {
		outcome := &fileOutcome{}
		mu.Lock()
		outcomes[job.ID] = outcome
		mu.Unlock()

		data, err := fs.ReadFile(job.Input)
		if err != nil {
			log.Error(l10n.F("Failed to read %s: %s", job.Input, err))
			outcome.err = err
			return jobs.Result{}, err
		}
		outcome.size = int64(len(data))

		src := pipeline.SourceMedia{
			Data:     data,
			MIMEType: mime.TypeByExtension(strings.ToLower(filepath.Ext(job.Input))),
			Filename: filepath.Base(job.Input),
		}

		sink := cmd.newSink(cfg, fs, renderer, src.BaseName())
		orch := orchestrator.NewDefault(runtime, decoder, renderer, sink, metrics, log.WithComponent(src.BaseName()))

		runConfig := orchConfig
		runConfig.OnTransition = func(from, to orchestrator.LadderState) {
			if to.State == orchestrator.StateAttempting {
				progress(to.Index+1, runConfig.Plans[to.Index].Method)
			}
		}

		result, err := orch.Run(ctx, src, runConfig)
		outcome.result = withoutPayload(result)
		if err != nil {
			outcome.err = err
			return jobs.Result{}, err
		}

		output, thumbPath, err := writeOutputs(fs, paths, result)
		if err != nil {
			log.Error(l10n.F("Failed to write output: %s", err))
			outcome.err = err
			return jobs.Result{}, err
		}
		outcome.output = output
		log.Info(l10n.F("Output saved to %s", output))
		if thumbPath != "" {
			log.Info(l10n.F("Thumbnail saved to %s", thumbPath))
		}
		return jobs.Summarize(output, result), nil
	})

	// Report
	builder := summarizer.NewBuilder().WithSettings(summarizer.Settings{
		Preset:     cfg.Preset,
		Runtime:    runtime.Name(),
		Decoder:    joinBackends(decInfo.Backends),
		MinSavings: settings.MinSavings,
		Workers:    settings.Workers,
	})

	succeeded := 0
	for _, id := range ids {
		job, _ := store.Get(id)
		log.Info(l10n.F("Job %s %s", job.Input, job.Status))

		outcome := outcomes[id]
		if outcome == nil {
			builder.WithFailure(job.Input, 0, fmt.Errorf("%s", job.Status), nil)
			continue
		}
		if job.Status == jobs.StatusSucceeded {
			succeeded++
			builder.WithResult(job.Input, outcome.output, outcome.size, outcome.result)
		} else {
			builder.WithFailure(job.Input, outcome.size, outcome.err, outcome.result.Attempts)
		}
	}
	log.Info(l10n.F("%d of %d files compressed", succeeded, len(ids)))

	if cfg.SummaryFile != "" {
		writer := summarizer.NewWriter(summarizer.NewMarkdownFormatter(
			summarizer.WithTranslator(l10n.T),
			summarizer.WithVersion(version),
		), fs)
		if err := writer.Write(cfg.SummaryFile, builder.Build()); err != nil {
			log.Error(l10n.F("Failed to write output: %s", err))
		}
	}

	if prom != nil {
		if err := prom.WriteToTextfile(cfg.MetricsFile); err != nil {
			log.Error(l10n.F("Failed to write output: %s", err))
		}
	}

	if runErr != nil {
		return runErr
	}
	if succeeded < len(ids) {
		return fmt.Errorf("%d of %d files could not be compressed", len(ids)-succeeded, len(ids))
	}
	return nil
}

// buildConfig creates a Config from the file, the common flags and the
// compress overrides.
func (cmd *CompressCmd) buildConfig() (config.Config, error) {
	cfg, err := cmd.loadConfig()
	if err != nil {
		return cfg, err
	}

	if cmd.Output != "" {
		cfg.OutputDir = cmd.Output
	}
	if cmd.MinSavings != nil {
		cfg.MinSavings = *cmd.MinSavings
	}
	if cmd.AcceptLarger {
		cfg.AcceptLargerOnLastRung = true
	}
	if cmd.SeekTimeout != nil {
		cfg.SeekTimeoutMs = int(cmd.SeekTimeout.Milliseconds())
	}
	if cmd.AttemptTimeout != nil {
		cfg.AttemptTimeoutSec = int(cmd.AttemptTimeout.Seconds())
	}
	if cmd.Workers != nil {
		cfg.Workers = *cmd.Workers
	}
	if cmd.NoThumbnail {
		cfg.Thumbnail.Enabled = false
	}
	if cmd.ThumbnailAt != nil {
		cfg.Thumbnail.AtMs = int(cmd.ThumbnailAt.Milliseconds())
	}
	if cmd.ThumbnailFormat != nil {
		cfg.Thumbnail.Format = *cmd.ThumbnailFormat
	}
	if cmd.MetricsFile != "" {
		cfg.MetricsFile = cmd.MetricsFile
	}
	if cmd.Summary != "" {
		cfg.SummaryFile = cmd.Summary
	}
	if cmd.Debug {
		cfg.Debug = true
	}
	if cmd.DebugDir != "" {
		cfg.DebugDir = cmd.DebugDir
	}

	return cfg, nil
}

// newSink returns a per-file debug sink so concurrent jobs never share a
// directory.
func (cmd *CompressCmd) newSink(cfg config.Config, fs ports.FileSystem, renderer ports.Renderer, base string) ports.DebugSink {
	if !cfg.Debug {
		return nullsink.New()
	}
	return filesink.New(filepath.Join(cfg.DebugDir, base), fs, renderer)
}

// withoutPayload drops the encoded video and poster bytes, keeping sizes
// and the attempt trace.
func withoutPayload(r pipeline.CompressionResult) pipeline.CompressionResult {
	r.File.Data = nil
	if r.Thumbnail != nil {
		thumb := *r.Thumbnail
		thumb.Data = nil
		r.Thumbnail = &thumb
	}
	return r
}

func joinBackends(backends []smartdecoder.Backend) string {
	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = string(b)
	}
	return strings.Join(names, "+")
}
