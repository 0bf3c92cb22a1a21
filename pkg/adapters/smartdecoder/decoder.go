// Package smartdecoder picks a decoder per source: the pure-Go MJPEG reader
// when the container allows it, ffmpeg for everything else.
package smartdecoder

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/vidshrink/pkg/adapters/ffmpeg"
	"github.com/user/vidshrink/pkg/adapters/ffmpegdecoder"
	"github.com/user/vidshrink/pkg/adapters/mp4decoder"
	"github.com/user/vidshrink/pkg/ports"
)

// Backend represents the decoding backend used.
type Backend string

const (
	// BackendNative is the pure-Go MJPEG MP4 decoder.
	BackendNative Backend = "native"
	// BackendFFmpeg is the ffmpeg/ffprobe decoder.
	BackendFFmpeg Backend = "ffmpeg"
	// BackendNone means no decoder can read the source.
	BackendNone Backend = "none"
)

// Options configures the smart decoder behavior.
type Options struct {
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string
	// FFprobePath is an optional custom path to the ffprobe binary.
	FFprobePath string
	// Logger receives the backend chosen for each source.
	Logger ports.Logger
}

// ErrNoDecoderAvailable is returned when no backend can read a source.
var ErrNoDecoderAvailable = errors.New("smartdecoder: no decoder available")

// Info contains information about the available backends.
type Info struct {
	Backends []Backend
}

// Decoder implements ports.MediaDecoder by dispatching per source.
type Decoder struct {
	native *mp4decoder.Decoder
	ffmpeg ports.MediaDecoder
	logger ports.Logger
	info   Info
}

// New creates a decoder. ffmpeg is optional; fs materializes sources for it.
func New(fs ports.FileSystem, opts Options) (*Decoder, Info) {
	if opts.FFmpegPath != "" {
		ffmpeg.SetPath(ffmpeg.ToolFFmpeg, opts.FFmpegPath)
	}
	if opts.FFprobePath != "" {
		ffmpeg.SetPath(ffmpeg.ToolFFprobe, opts.FFprobePath)
	}

	d := &Decoder{native: mp4decoder.New(), logger: opts.Logger}
	d.info.Backends = append(d.info.Backends, BackendNative)
	if dec, err := ffmpegdecoder.New(fs); err == nil {
		d.ffmpeg = dec
		d.info.Backends = append(d.info.Backends, BackendFFmpeg)
	}
	return d, d.info
}

// NewWith creates a decoder with an explicit fallback, which may be nil.
func NewWith(fallback ports.MediaDecoder, logger ports.Logger) *Decoder {
	d := &Decoder{native: mp4decoder.New(), ffmpeg: fallback, logger: logger}
	d.info.Backends = []Backend{BackendNative}
	if fallback != nil {
		d.info.Backends = append(d.info.Backends, BackendFFmpeg)
	}
	return d
}

// Info returns the available backends.
func (d *Decoder) Info() Info { return d.info }

// Select returns the backend Open would use for data.
func (d *Decoder) Select(data []byte) Backend {
	if mp4decoder.Supports(data) {
		return BackendNative
	}
	if d.ffmpeg != nil {
		return BackendFFmpeg
	}
	return BackendNone
}

// Open implements ports.MediaDecoder.
func (d *Decoder) Open(ctx context.Context, src ports.MediaSource) (ports.DecodeSession, error) {
	backend := d.Select(src.Data)
	if d.logger != nil {
		d.logger.Debug("Using %s decoder", backend)
	}
	switch backend {
	case BackendNative:
		return d.native.Open(ctx, src)
	case BackendFFmpeg:
		return d.ffmpeg.Open(ctx, src)
	}
	return nil, fmt.Errorf("%w: source is not MJPEG MP4 and ffmpeg is not installed", ErrNoDecoderAvailable)
}

var _ ports.MediaDecoder = (*Decoder)(nil)
