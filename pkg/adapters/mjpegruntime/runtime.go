// Package mjpegruntime is a pure-Go encoding runtime that records a capture
// stream as Motion-JPEG in fragmented MP4. It has no external dependencies,
// so it is always available, but it only supports plain "video/mp4" and
// never records audio.
package mjpegruntime

import (
	"errors"
	"fmt"
	"strings"

	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/ports"
)

// MIMEType is the type every recorder of this runtime produces.
const MIMEType = `video/mp4;codecs="jpeg"`

// Name is the runtime name used in logs and reports.
const Name = "mjpeg"

// ErrUnsupportedType is returned by NewRecorder for types other than MP4/JPEG.
var ErrUnsupportedType = errors.New("mjpegruntime: unsupported type")

// Options configures the runtime.
type Options struct {
	// Quality is the JPEG quality used when no bitrate hint is given.
	Quality int

	// FragmentFrames is the number of frames per emitted fragment.
	FragmentFrames int
}

// DefaultOptions returns the default runtime options.
func DefaultOptions() Options {
	return Options{
		Quality:        75,
		FragmentFrames: 30,
	}
}

// Runtime implements ports.EncodingRuntime.
type Runtime struct {
	opts Options
}

// New creates a runtime with default options.
func New() *Runtime {
	return NewWithOptions(DefaultOptions())
}

// NewWithOptions creates a runtime with the given options.
func NewWithOptions(opts Options) *Runtime {
	def := DefaultOptions()
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}
	if opts.FragmentFrames <= 0 {
		opts.FragmentFrames = def.FragmentFrames
	}
	return &Runtime{opts: opts}
}

// Name implements ports.EncodingRuntime.
func (r *Runtime) Name() string { return Name }

// IsTypeSupported accepts MP4 without codecs or with a JPEG video codec.
// Audio codecs are refused.
func (r *Runtime) IsTypeSupported(mimeType string) bool {
	t := pipeline.ParseTarget(mimeType)
	if t.IsDefault() {
		return true
	}
	if t.Container != "mp4" || t.HasAudio() {
		return false
	}
	switch strings.ToLower(t.VideoCodec) {
	case "", "jpeg", "mjpeg", "mjpg":
		return true
	}
	return false
}

// NewRecorder implements ports.EncodingRuntime.
func (r *Runtime) NewRecorder(stream ports.CaptureStream, opts ports.RecorderOptions) (ports.Recorder, error) {
	if !r.IsTypeSupported(opts.MIMEType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, opts.MIMEType)
	}
	quality := r.opts.Quality
	if opts.VideoBitsPerSecond > 0 {
		quality = qualityForBitrate(opts.VideoBitsPerSecond, stream.Width(), stream.Height(), stream.FrameRate())
	}
	return newRecorder(stream, quality, r.opts.FragmentFrames), nil
}

// qualityForBitrate maps a bitrate hint to a JPEG quality using the bits
// available per pixel per frame.
func qualityForBitrate(bits, width, height int, fps float64) int {
	if width <= 0 || height <= 0 || fps <= 0 {
		return DefaultOptions().Quality
	}
	bpp := float64(bits) / (float64(width*height) * fps)
	q := int(bpp * 250)
	if q < 20 {
		q = 20
	}
	if q > 90 {
		q = 90
	}
	return q
}

var _ ports.EncodingRuntime = (*Runtime)(nil)
