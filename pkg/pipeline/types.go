package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/user/vidshrink/pkg/ports"
	"github.com/user/vidshrink/pkg/surface"
)

// =============================================================================
// Source
// =============================================================================

// SourceMedia is the caller's original video. The pipeline never mutates it.
type SourceMedia struct {
	Data     []byte
	MIMEType string
	Filename string
}

// Size returns the payload size in bytes.
func (s SourceMedia) Size() int {
	return len(s.Data)
}

// Media converts the source to the decoder port type.
func (s SourceMedia) Media() ports.MediaSource {
	return ports.MediaSource{Data: s.Data, MIMEType: s.MIMEType, Filename: s.Filename}
}

// BaseName returns the filename without directory and extension.
func (s SourceMedia) BaseName() string {
	name := filepath.Base(s.Filename)
	if name == "." || name == "/" || name == "" {
		return "video"
	}
	if ext := filepath.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// =============================================================================
// Compression Plan
// =============================================================================

// Method names a ladder strategy.
type Method string

const (
	MethodQualityPreserving Method = "quality-preserving"
	MethodBalanced          Method = "balanced"
	MethodAggressive        Method = "aggressive"
	MethodSimpleFallback    Method = "simple-fallback"
)

// CompressionPlan is the immutable parameter set for one attempt.
type CompressionPlan struct {
	Method              Method
	Scale               float64  // Output dimensions = floor(source * Scale), 0 < Scale <= 1
	FrameRate           int      // Render rate in frames per second
	FrameSkip           int      // Draw only every FrameSkip-th rendered frame
	Candidates          []string // Container/codec MIME types in preference order
	Audio               bool     // Whether audio candidates may be used
	AllowRuntimeDefault bool     // Fall back to the runtime's own choice when nothing matches
	VideoBitsPerSecond  int      // Bitrate hint handed to the recorder
	QualityScore        int      // Ordinal, higher is better
	MaxFrames           int      // Render loop budget, 0 for unlimited
}

// Validate checks the plan parameters.
func (p CompressionPlan) Validate() error {
	if p.Method == "" {
		return fmt.Errorf("plan has no method name")
	}
	if p.Scale <= 0 || p.Scale > 1 {
		return fmt.Errorf("plan %s: scale %.2f out of range (0,1]", p.Method, p.Scale)
	}
	if p.FrameRate < 1 {
		return fmt.Errorf("plan %s: frame rate must be positive", p.Method)
	}
	if p.FrameSkip < 1 {
		return fmt.Errorf("plan %s: frame skip must be at least 1", p.Method)
	}
	if len(p.Candidates) == 0 && !p.AllowRuntimeDefault {
		return fmt.Errorf("plan %s: no candidates and runtime default not allowed", p.Method)
	}
	return nil
}

// EffectiveFrameRate is the rate at which frames reach the recorder.
func (p CompressionPlan) EffectiveFrameRate() float64 {
	if p.FrameSkip < 1 {
		return float64(p.FrameRate)
	}
	return float64(p.FrameRate) / float64(p.FrameSkip)
}

// ScaledSize applies Scale to the source dimensions, flooring to integers.
func (p CompressionPlan) ScaledSize(width, height int) (int, int) {
	w := int(float64(width) * p.Scale)
	h := int(float64(height) * p.Scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// =============================================================================
// Probe Stage Types
// =============================================================================

// ProbeInput lists the candidates of one plan.
type ProbeInput struct {
	Candidates          []string
	AllowRuntimeDefault bool
}

// ProbeResult holds the supported candidates in preference order.
// Found is false when nothing is usable.
type ProbeResult struct {
	Supported []EncodeTarget
	Found     bool
}

// Target returns the preferred supported target.
func (r ProbeResult) Target() EncodeTarget {
	if len(r.Supported) == 0 {
		return EncodeTarget{}
	}
	return r.Supported[0]
}

// =============================================================================
// Render Stage Types
// =============================================================================

// RenderInput contains the resources of one render pass.
type RenderInput struct {
	Session     ports.DecodeSession
	Surface     *surface.Surface
	FrameRate   int
	FrameSkip   int
	MaxFrames   int
	SeekTimeout time.Duration
	Attempt     int // Attempt index, used for debug output
}

// RenderResult summarizes a completed render pass.
type RenderResult struct {
	FramesRendered int // Loop iterations, drawn or skipped
	FramesDrawn    int // Frames committed to the stream
	FramesRepeated int // Committed frames that reused the previous image
	Duration       time.Duration
}

// =============================================================================
// Encode Stage Types
// =============================================================================

// EncodeInput binds a capture stream to candidate targets.
type EncodeInput struct {
	Stream             ports.CaptureStream
	Targets            []EncodeTarget
	Audio              bool
	AudioPath          string
	VideoBitsPerSecond int
}

// =============================================================================
// Thumbnail Stage Types
// =============================================================================

// DefaultThumbnailAt is the poster timestamp used when the caller has none.
const DefaultThumbnailAt = time.Second

// ThumbnailEndMargin keeps the poster seek strictly before the end.
const ThumbnailEndMargin = 100 * time.Millisecond

// ThumbnailInput configures poster extraction.
type ThumbnailInput struct {
	Source       SourceMedia
	At           time.Duration
	Format       ports.ImageFormat
	Quality      int
	MaxDimension int // 0 keeps native dimensions
	SeekTimeout  time.Duration
}

// DefaultThumbnailInput returns ThumbnailInput with default values.
func DefaultThumbnailInput(src SourceMedia) ThumbnailInput {
	return ThumbnailInput{
		Source:      src,
		At:          DefaultThumbnailAt,
		Format:      ports.FormatJPEG,
		Quality:     80,
		SeekTimeout: 5 * time.Second,
	}
}

// Thumbnail is a poster still.
type Thumbnail struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
	At       time.Duration
}

// =============================================================================
// Report Stage Types
// =============================================================================

// AttemptReport is one entry of the ladder trace.
type AttemptReport struct {
	Index       int           `json:"index" yaml:"index"`
	Method      Method        `json:"method" yaml:"method"`
	Target      string        `json:"target" yaml:"target"`
	Outcome     string        `json:"outcome" yaml:"outcome"`
	Error       string        `json:"error,omitempty" yaml:"error,omitempty"`
	Elapsed     time.Duration `json:"elapsed" yaml:"elapsed"`
	OutputBytes int           `json:"output_bytes" yaml:"output_bytes"`
	Frames      int           `json:"frames" yaml:"frames"`
}

// ReportInput carries everything needed to describe a successful run.
type ReportInput struct {
	Source     SourceMedia
	SourceInfo ports.MediaInfo
	Plan       CompressionPlan
	Target     EncodeTarget
	OutputMIME string // Type the recorder actually produced
	Data       []byte
	Elapsed    time.Duration
	Thumbnail  *Thumbnail
	Attempts   []AttemptReport
}

// OutputFile is the compressed video.
type OutputFile struct {
	Data     []byte
	Filename string
	MIMEType string
}

// CompressionResult is the outcome of a successful pipeline run.
type CompressionResult struct {
	File             OutputFile
	OriginalSizeMB   float64
	CompressedSizeMB float64
	CompressionRatio float64 // OriginalSizeMB / CompressedSizeMB
	ProcessingTimeMs int64
	Method           Method
	QualityScore     int
	AudioPreserved   bool
	SmoothPlayback   bool
	Thumbnail        *Thumbnail
	Width            int
	Height           int
	Attempts         []AttemptReport
}
