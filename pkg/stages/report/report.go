// Package report turns a successful attempt into a CompressionResult.
package report

import (
	"context"

	"github.com/user/vidshrink/pkg/pipeline"
)

// BytesPerMB is the divisor used for the MB figures.
const BytesPerMB = 1024 * 1024

// SmoothFrameRate is the effective rate at or above which playback is
// reported as smooth.
const SmoothFrameRate = 20.0

// Stage is a pure computation over a finished attempt.
type Stage struct{}

// NewStage creates a new report stage.
func NewStage() *Stage {
	return &Stage{}
}

// Execute builds the result. The ratio is derived from the reported MB
// values so that CompressionRatio == OriginalSizeMB / CompressedSizeMB holds
// exactly.
func (s *Stage) Execute(ctx context.Context, input pipeline.ReportInput) (pipeline.CompressionResult, error) {
	if len(input.Data) == 0 {
		return pipeline.CompressionResult{}, pipeline.ErrEmptyOutput
	}

	originalMB := float64(input.Source.Size()) / BytesPerMB
	compressedMB := float64(len(input.Data)) / BytesPerMB

	mimeType := input.OutputMIME
	if mimeType == "" {
		mimeType = input.Target.MIMEType
	}
	if mimeType == "" {
		mimeType = "video/webm"
	}
	produced := pipeline.ParseTarget(mimeType)

	// A runtime-default target negotiated nothing; trust what was produced.
	target := input.Target
	if target.IsDefault() {
		target = produced
	}

	width, height := input.Plan.ScaledSize(input.SourceInfo.Width, input.SourceInfo.Height)

	return pipeline.CompressionResult{
		File: pipeline.OutputFile{
			Data:     input.Data,
			Filename: input.Source.BaseName() + produced.Extension(),
			MIMEType: mimeType,
		},
		OriginalSizeMB:   originalMB,
		CompressedSizeMB: compressedMB,
		CompressionRatio: originalMB / compressedMB,
		ProcessingTimeMs: input.Elapsed.Milliseconds(),
		Method:           input.Plan.Method,
		QualityScore:     input.Plan.QualityScore,
		AudioPreserved:   AudioPreserved(input.Plan, target, input.SourceInfo.HasAudio),
		SmoothPlayback:   input.Plan.EffectiveFrameRate() >= SmoothFrameRate,
		Thumbnail:        input.Thumbnail,
		Width:            width,
		Height:           height,
		Attempts:         input.Attempts,
	}, nil
}

// AudioPreserved reports whether the output carries the source audio.
func AudioPreserved(plan pipeline.CompressionPlan, target pipeline.EncodeTarget, sourceHasAudio bool) bool {
	if plan.Method == pipeline.MethodSimpleFallback || !plan.Audio {
		return false
	}
	return target.HasAudio() && sourceHasAudio
}
