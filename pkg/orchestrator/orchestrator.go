// Package orchestrator drives the fallback ladder: it runs one strategy
// attempt at a time, tears each attempt down completely, and packages the
// first acceptable output.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ideamans/go-l10n"
	"golang.org/x/sync/errgroup"

	"github.com/user/vidshrink/pkg/ladder"
	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/ports"
	"github.com/user/vidshrink/pkg/stages/encode"
	"github.com/user/vidshrink/pkg/stages/probe"
	"github.com/user/vidshrink/pkg/stages/render"
	"github.com/user/vidshrink/pkg/stages/report"
	"github.com/user/vidshrink/pkg/stages/thumbnail"
	"github.com/user/vidshrink/pkg/surface"
)

// ThumbnailConfig controls poster extraction.
type ThumbnailConfig struct {
	Enabled      bool
	At           time.Duration
	Format       ports.ImageFormat
	Quality      int
	MaxDimension int
}

// Config contains all configuration for a pipeline run.
type Config struct {
	// Plans is the ladder, tried in order.
	Plans []pipeline.CompressionPlan

	// Policy decides whether an attempt's output is kept.
	Policy ladder.Policy

	// SeekTimeout bounds a single decoder seek.
	SeekTimeout time.Duration

	// AttemptTimeout bounds a whole attempt; 0 disables the ceiling.
	AttemptTimeout time.Duration

	// SettleDelay is waited after the recorder stops, before the output
	// is measured.
	SettleDelay time.Duration

	Thumbnail ThumbnailConfig

	// OnTransition, when set, observes every ladder state change.
	OnTransition func(from, to LadderState)
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Plans:          ladder.Default(),
		Policy:         ladder.DefaultPolicy(),
		SeekTimeout:    5 * time.Second,
		AttemptTimeout: 10 * time.Minute,
		Thumbnail: ThumbnailConfig{
			Enabled: true,
			At:      pipeline.DefaultThumbnailAt,
			Format:  ports.FormatJPEG,
			Quality: 80,
		},
	}
}

// Stages groups the stage implementations the orchestrator drives.
type Stages struct {
	Probe     pipeline.Stage[pipeline.ProbeInput, pipeline.ProbeResult]
	Render    pipeline.Stage[pipeline.RenderInput, pipeline.RenderResult]
	Encode    *encode.Stage
	Thumbnail pipeline.Stage[pipeline.ThumbnailInput, pipeline.Thumbnail]
	Report    pipeline.Stage[pipeline.ReportInput, pipeline.CompressionResult]
}

// Orchestrator coordinates the stages. It holds no per-run state, so one
// instance may serve concurrent runs.
type Orchestrator struct {
	stages   Stages
	decoder  ports.MediaDecoder
	renderer ports.Renderer
	sink     ports.DebugSink
	metrics  ports.Metrics
	logger   ports.Logger
}

// New creates a new Orchestrator.
func New(
	stages Stages,
	decoder ports.MediaDecoder,
	renderer ports.Renderer,
	sink ports.DebugSink,
	metrics ports.Metrics,
	logger ports.Logger,
) *Orchestrator {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Orchestrator{
		stages:   stages,
		decoder:  decoder,
		renderer: renderer,
		sink:     sink,
		metrics:  metrics,
		logger:   logger,
	}
}

// NewDefault wires the standard stages around the given adapters.
func NewDefault(
	runtime ports.EncodingRuntime,
	decoder ports.MediaDecoder,
	renderer ports.Renderer,
	sink ports.DebugSink,
	metrics ports.Metrics,
	logger ports.Logger,
) *Orchestrator {
	return New(Stages{
		Probe:     probe.NewStage(runtime, logger),
		Render:    render.NewStage(sink, logger),
		Encode:    encode.NewStage(runtime, logger),
		Thumbnail: thumbnail.NewStage(decoder, renderer, sink, logger),
		Report:    report.NewStage(),
	}, decoder, renderer, sink, metrics, logger)
}

// attemptOutput is what a successful attempt hands back to the ladder.
type attemptOutput struct {
	data       []byte
	mimeType   string
	target     pipeline.EncodeTarget
	frames     int
	finishedAt time.Time
}

// Run compresses src. It returns ErrUnreadableSource when the source cannot
// be decoded at all, and ErrAllStrategiesFailed, joined with every
// attempt's error, when no rung produced an acceptable file.
func (o *Orchestrator) Run(ctx context.Context, src pipeline.SourceMedia, config Config) (pipeline.CompressionResult, error) {
	start := time.Now()

	if err := ladder.Validate(config.Plans); err != nil {
		return pipeline.CompressionResult{}, fmt.Errorf("invalid ladder: %w", err)
	}

	o.logger.Info(l10n.F("Compressing %s (%.1f MB)", displayName(src), float64(src.Size())/report.BytesPerMB))

	info, err := o.inspect(ctx, src)
	if err != nil {
		o.logger.Error(l10n.F("Source is unreadable: %s", err))
		o.metrics.ObserveResult("", false, 0)
		return pipeline.CompressionResult{}, err
	}
	o.logger.Info(l10n.F("Source: %dx%d, %s, audio: %t", info.Width, info.Height, info.Duration.Round(time.Millisecond), info.HasAudio))

	state := LadderState{State: StateNotStarted}
	var (
		attempts []pipeline.AttemptReport
		failures []error
	)

	for i, plan := range config.Plans {
		state = o.transition(config, state, LadderState{State: StateAttempting, Index: i})
		o.logger.Info(l10n.F("Attempt %d/%d: %s", i+1, len(config.Plans), plan.Method))

		attemptStart := time.Now()
		out, err := o.attempt(ctx, src, info, plan, i, config, i == len(config.Plans)-1)
		elapsed := time.Since(attemptStart)

		entry := pipeline.AttemptReport{
			Index:       i,
			Method:      plan.Method,
			Target:      out.target.String(),
			Outcome:     pipeline.Outcome(err),
			Elapsed:     elapsed,
			OutputBytes: len(out.data),
			Frames:      out.frames,
		}
		if err != nil {
			entry.Error = err.Error()
		}
		attempts = append(attempts, entry)
		o.metrics.ObserveAttempt(string(plan.Method), entry.Outcome, elapsed)

		if err == nil {
			o.transition(config, state, LadderState{State: StateSucceeded, Index: i})
			o.saveAttempts(attempts)
			return o.finish(ctx, src, info, plan, out, start, attempts, config)
		}

		failures = append(failures, fmt.Errorf("%s: %w", plan.Method, err))
		o.logger.Warn(l10n.F("Strategy %s failed: %s", plan.Method, err))

		if errors.Is(err, pipeline.ErrUnreadableSource) {
			o.saveAttempts(attempts)
			o.metrics.ObserveResult("", false, 0)
			return pipeline.CompressionResult{Attempts: attempts}, err
		}
		if ctx.Err() != nil {
			o.saveAttempts(attempts)
			o.metrics.ObserveResult("", false, 0)
			return pipeline.CompressionResult{Attempts: attempts}, ctx.Err()
		}
	}

	o.transition(config, state, LadderState{State: StateAllFailed, Index: len(config.Plans)})
	o.saveAttempts(attempts)
	o.metrics.ObserveResult("", false, 0)
	o.logger.Error(l10n.T("All compression strategies failed"))

	return pipeline.CompressionResult{Attempts: attempts},
		fmt.Errorf("%w: %w", pipeline.ErrAllStrategiesFailed, errors.Join(failures...))
}

// inspect opens the source once before the ladder. Failure here is terminal.
func (o *Orchestrator) inspect(ctx context.Context, src pipeline.SourceMedia) (ports.MediaInfo, error) {
	if src.Size() == 0 {
		return ports.MediaInfo{}, fmt.Errorf("%w: empty payload", pipeline.ErrUnreadableSource)
	}

	session, err := o.decoder.Open(ctx, src.Media())
	if err != nil {
		if errors.Is(err, pipeline.ErrUnreadableSource) {
			return ports.MediaInfo{}, err
		}
		return ports.MediaInfo{}, fmt.Errorf("%w: %v", pipeline.ErrUnreadableSource, err)
	}
	defer session.Close()

	info := session.Info()
	if o.sink.Enabled() {
		if data, err := json.MarshalIndent(info, "", "  "); err == nil {
			o.sink.SaveProbeJSON(data)
		}
	}
	if info.Width <= 0 || info.Height <= 0 {
		return info, fmt.Errorf("%w: no video dimensions", pipeline.ErrUnreadableSource)
	}
	return info, nil
}

// attempt runs one strategy with fresh resources. Every resource acquired
// here is released before it returns, on success and failure alike.
func (o *Orchestrator) attempt(
	ctx context.Context,
	src pipeline.SourceMedia,
	info ports.MediaInfo,
	plan pipeline.CompressionPlan,
	index int,
	config Config,
	lastRung bool,
) (attemptOutput, error) {
	out := attemptOutput{}

	if config.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, config.AttemptTimeout, pipeline.ErrAttemptTimeout)
		defer cancel()
	}

	probed, err := o.stages.Probe.Execute(ctx, pipeline.ProbeInput{
		Candidates:          plan.Candidates,
		AllowRuntimeDefault: plan.AllowRuntimeDefault,
	})
	if err != nil {
		return out, attemptError(ctx, err)
	}
	if !probed.Found {
		return out, pipeline.ErrCapabilityUnavailable
	}
	out.target = probed.Target()

	session, err := o.decoder.Open(ctx, src.Media())
	if err != nil {
		return out, fmt.Errorf("open source: %w", err)
	}
	defer session.Close()

	width, height := plan.ScaledSize(info.Width, info.Height)
	surf := surface.New(o.renderer, width, height, plan.EffectiveFrameRate())
	defer surf.Release()

	rec, err := o.stages.Encode.Start(ctx, pipeline.EncodeInput{
		Stream:             surf.Stream(),
		Targets:            probed.Supported,
		Audio:              plan.Audio,
		AudioPath:          session.AudioPath(),
		VideoBitsPerSecond: plan.VideoBitsPerSecond,
	})
	if err != nil {
		return out, attemptError(ctx, err)
	}
	defer rec.Release()
	out.target = rec.Target()

	g, gctx := errgroup.WithContext(ctx)
	// Abort the recorder as soon as either side fails so a blocked Stop
	// or chunk send cannot outlive the attempt.
	stopAbort := context.AfterFunc(gctx, rec.Release)
	defer stopAbort()

	g.Go(func() error {
		rendered, err := o.stages.Render.Execute(gctx, pipeline.RenderInput{
			Session:     session,
			Surface:     surf,
			FrameRate:   plan.FrameRate,
			FrameSkip:   plan.FrameSkip,
			MaxFrames:   plan.MaxFrames,
			SeekTimeout: config.SeekTimeout,
			Attempt:     index,
		})
		out.frames = rendered.FramesDrawn
		surf.End()
		if err != nil {
			return err
		}
		return rec.Stop()
	})
	g.Go(func() error {
		return rec.Collect(gctx)
	})

	if err := g.Wait(); err != nil {
		return out, attemptError(ctx, err)
	}

	if config.SettleDelay > 0 {
		select {
		case <-time.After(config.SettleDelay):
		case <-ctx.Done():
			return out, attemptError(ctx, ctx.Err())
		}
	}

	data, err := rec.Bytes()
	if err != nil {
		return out, err
	}
	out.finishedAt = time.Now()
	out.data = data
	out.mimeType = rec.MIMEType()

	o.logger.Debug("Attempt %d produced %d bytes as %s", index, len(data), out.mimeType)

	if err := config.Policy.Accept(src.Size(), len(data), lastRung); err != nil {
		return out, err
	}
	return out, nil
}

// finish runs the thumbnail and report stages for a successful attempt.
func (o *Orchestrator) finish(
	ctx context.Context,
	src pipeline.SourceMedia,
	info ports.MediaInfo,
	plan pipeline.CompressionPlan,
	out attemptOutput,
	start time.Time,
	attempts []pipeline.AttemptReport,
	config Config,
) (pipeline.CompressionResult, error) {
	thumb := o.thumbnail(ctx, src, config)

	result, err := o.stages.Report.Execute(ctx, pipeline.ReportInput{
		Source:     src,
		SourceInfo: info,
		Plan:       plan,
		Target:     out.target,
		OutputMIME: out.mimeType,
		Data:       out.data,
		Elapsed:    out.finishedAt.Sub(start),
		Thumbnail:  thumb,
		Attempts:   attempts,
	})
	if err != nil {
		o.metrics.ObserveResult(string(plan.Method), false, 0)
		return pipeline.CompressionResult{Attempts: attempts}, fmt.Errorf("report stage: %w", err)
	}

	o.metrics.ObserveResult(string(plan.Method), true, result.CompressionRatio)
	o.logger.Info(l10n.F("Compressed with %s: %.2f MB -> %.2f MB (%.2fx)",
		plan.Method, result.OriginalSizeMB, result.CompressedSizeMB, result.CompressionRatio))
	return result, nil
}

// thumbnail never fails the pipeline; errors leave the result without a poster.
func (o *Orchestrator) thumbnail(ctx context.Context, src pipeline.SourceMedia, config Config) *pipeline.Thumbnail {
	if !config.Thumbnail.Enabled {
		return nil
	}
	thumb, err := o.stages.Thumbnail.Execute(ctx, pipeline.ThumbnailInput{
		Source:       src,
		At:           config.Thumbnail.At,
		Format:       config.Thumbnail.Format,
		Quality:      config.Thumbnail.Quality,
		MaxDimension: config.Thumbnail.MaxDimension,
		SeekTimeout:  config.SeekTimeout,
	})
	if err != nil {
		o.logger.Warn(l10n.F("Thumbnail extraction failed: %s", err))
		return nil
	}
	return &thumb
}

func (o *Orchestrator) transition(config Config, from, to LadderState) LadderState {
	o.logger.Debug("Ladder: %s -> %s", from, to)
	if config.OnTransition != nil {
		config.OnTransition(from, to)
	}
	return to
}

func (o *Orchestrator) saveAttempts(attempts []pipeline.AttemptReport) {
	if !o.sink.Enabled() {
		return
	}
	if data, err := json.MarshalIndent(attempts, "", "  "); err == nil {
		o.sink.SaveAttemptsJSON(data)
	}
}

// attemptError maps an expired attempt deadline to ErrAttemptTimeout.
func attemptError(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), pipeline.ErrAttemptTimeout) && !errors.Is(err, pipeline.ErrAttemptTimeout) {
		return fmt.Errorf("%w: %v", pipeline.ErrAttemptTimeout, err)
	}
	return err
}

func displayName(src pipeline.SourceMedia) string {
	if src.Filename != "" {
		return src.Filename
	}
	return "video"
}

type noopMetrics struct{}

func (noopMetrics) ObserveAttempt(string, string, time.Duration) {}
func (noopMetrics) ObserveResult(string, bool, float64)          {}
