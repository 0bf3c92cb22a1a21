package summarizer

import (
	"math"
	"time"

	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/stages/report"
)

// Summary contains everything collected during one vidshrink invocation.
type Summary struct {
	// Metadata
	GeneratedAt time.Time

	// Run settings
	Settings Settings

	// One entry per input file, in submission order
	Files []FileSummary
}

// Settings contains the run configuration.
type Settings struct {
	Preset     string
	Runtime    string // Chained backends, e.g. "ffmpeg+mjpeg"
	Decoder    string
	MinSavings float64
	Workers    int
}

// FileSummary describes the outcome for one input.
type FileSummary struct {
	Input        string
	OriginalSize int64

	// Set on success
	Output           string
	OutputSize       int64
	MIMEType         string
	Method           pipeline.Method
	QualityScore     int
	CompressionRatio float64
	Width            int
	Height           int
	AudioPreserved   bool
	SmoothPlayback   bool
	ProcessingTimeMs int64
	Thumbnail        string

	// Set on failure
	Error string

	Attempts []pipeline.AttemptReport
}

// Succeeded reports whether the file was compressed.
func (f FileSummary) Succeeded() bool {
	return f.Error == "" && f.OutputSize > 0
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithSettings sets run settings.
func (b *Builder) WithSettings(settings Settings) *Builder {
	b.summary.Settings = settings
	return b
}

// WithResult adds a successfully compressed file.
func (b *Builder) WithResult(input, output string, originalSize int64, result pipeline.CompressionResult) *Builder {
	f := FileSummary{
		Input:            input,
		OriginalSize:     originalSize,
		Output:           output,
		OutputSize:       outputSize(result),
		MIMEType:         result.File.MIMEType,
		Method:           result.Method,
		QualityScore:     result.QualityScore,
		CompressionRatio: result.CompressionRatio,
		Width:            result.Width,
		Height:           result.Height,
		AudioPreserved:   result.AudioPreserved,
		SmoothPlayback:   result.SmoothPlayback,
		ProcessingTimeMs: result.ProcessingTimeMs,
		Attempts:         result.Attempts,
	}
	if result.Thumbnail != nil {
		f.Thumbnail = result.Thumbnail.MIMEType
	}
	b.summary.Files = append(b.summary.Files, f)
	return b
}

// outputSize prefers the payload length and falls back to the reported
// MB figure, which is exact for any realistic size.
func outputSize(result pipeline.CompressionResult) int64 {
	if n := len(result.File.Data); n > 0 {
		return int64(n)
	}
	return int64(math.Round(result.CompressedSizeMB * report.BytesPerMB))
}

// WithFailure adds a file that could not be compressed, with whatever
// attempts ran before the ladder gave up.
func (b *Builder) WithFailure(input string, originalSize int64, err error, attempts []pipeline.AttemptReport) *Builder {
	f := FileSummary{
		Input:        input,
		OriginalSize: originalSize,
		Error:        "unknown error",
		Attempts:     attempts,
	}
	if err != nil {
		f.Error = err.Error()
	}
	b.summary.Files = append(b.summary.Files, f)
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
