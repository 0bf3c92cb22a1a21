// Package ffmpegruntime records capture streams by piping raw frames into an
// external ffmpeg process and streaming its muxed output back as chunks.
package ffmpegruntime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/user/vidshrink/pkg/adapters/ffmpeg"
	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/ports"
)

// Name is the runtime name used in logs and reports.
const Name = "ffmpeg"

// ErrUnsupportedType is returned by NewRecorder for types the local ffmpeg
// build cannot produce.
var ErrUnsupportedType = errors.New("ffmpegruntime: unsupported type")

// probeTimeout bounds the `ffmpeg -encoders` query.
const probeTimeout = 10 * time.Second

// Runtime implements ports.EncodingRuntime on top of ffmpeg.
type Runtime struct {
	ffmpegPath string

	once     sync.Once
	encoders map[string]bool
	probeErr error
}

// New locates ffmpeg. The encoder list is queried lazily.
func New() (*Runtime, error) {
	path, err := ffmpeg.FindFFmpeg()
	if err != nil {
		return nil, err
	}
	return &Runtime{ffmpegPath: path}, nil
}

// NewWithEncoders creates a runtime with a fixed encoder set. ffmpegPath is
// only used by recorders.
func NewWithEncoders(ffmpegPath string, encoders map[string]bool) *Runtime {
	r := &Runtime{ffmpegPath: ffmpegPath, encoders: encoders}
	r.once.Do(func() {})
	return r
}

// Name implements ports.EncodingRuntime.
func (r *Runtime) Name() string { return Name }

func (r *Runtime) availableEncoders() map[string]bool {
	r.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		r.encoders, r.probeErr = ffmpeg.ListEncoders(ctx, r.ffmpegPath)
	})
	return r.encoders
}

// ProbeError returns the error of the encoder query, if any.
func (r *Runtime) ProbeError() error {
	r.availableEncoders()
	return r.probeErr
}

// IsTypeSupported implements ports.EncodingRuntime.
func (r *Runtime) IsTypeSupported(mimeType string) bool {
	_, err := r.resolve(mimeType)
	return err == nil
}

// NewRecorder implements ports.EncodingRuntime.
func (r *Runtime) NewRecorder(stream ports.CaptureStream, opts ports.RecorderOptions) (ports.Recorder, error) {
	p, err := r.resolve(opts.MIMEType)
	if err != nil {
		return nil, err
	}
	if !p.target.HasAudio() {
		opts.AudioPath = ""
	}
	return newRecorder(r.ffmpegPath, stream, p, opts), nil
}

// profile is a resolved ffmpeg invocation for one MIME type.
type profile struct {
	target     pipeline.EncodeTarget
	muxer      string
	videoCodec string
	videoArgs  []string
	audioCodec string
	mimeType   string
}

// Default types tried in order for the runtime default.
var defaultTypes = []string{
	"video/webm;codecs=vp8",
	"video/webm;codecs=vp9",
	`video/mp4;codecs="avc1.42E01E"`,
}

func (r *Runtime) resolve(mimeType string) (profile, error) {
	if strings.TrimSpace(mimeType) == "" {
		for _, t := range defaultTypes {
			if p, err := r.resolve(t); err == nil {
				return p, nil
			}
		}
		return profile{}, fmt.Errorf("%w: no default encoder available", ErrUnsupportedType)
	}

	t := pipeline.ParseTarget(mimeType)
	p := profile{target: t, mimeType: t.MIMEType}

	switch t.Container {
	case "webm":
		p.muxer = "webm"
	case "mp4":
		p.muxer = "mp4"
	case "x-matroska", "matroska":
		p.muxer = "matroska"
	default:
		return profile{}, fmt.Errorf("%w: container %q", ErrUnsupportedType, t.Container)
	}

	video, args, ok := videoEncoder(t.Container, t.VideoCodec)
	if !ok {
		return profile{}, fmt.Errorf("%w: video codec %q in %s", ErrUnsupportedType, t.VideoCodec, t.Container)
	}
	p.videoArgs = args

	encoders := r.availableEncoders()
	p.videoCodec = firstAvailable(encoders, video)
	if p.videoCodec == "" {
		return profile{}, fmt.Errorf("%w: no encoder for %q", ErrUnsupportedType, mimeType)
	}

	if t.HasAudio() {
		audio, ok := audioEncoder(t.Container, t.AudioCodec)
		if !ok {
			return profile{}, fmt.Errorf("%w: audio codec %q in %s", ErrUnsupportedType, t.AudioCodec, t.Container)
		}
		p.audioCodec = firstAvailable(encoders, audio)
		if p.audioCodec == "" {
			return profile{}, fmt.Errorf("%w: no encoder for %q", ErrUnsupportedType, mimeType)
		}
	}

	return p, nil
}

func firstAvailable(encoders map[string]bool, names []string) string {
	for _, n := range names {
		if encoders[n] {
			return n
		}
	}
	return ""
}

// videoEncoder maps a codec string to candidate ffmpeg encoders and extra
// arguments. An empty codec selects the container's usual codec.
func videoEncoder(container, codec string) ([]string, []string, bool) {
	codec = strings.ToLower(codec)
	switch {
	case codec == "":
		if container == "mp4" {
			return []string{"libx264"}, []string{"-profile:v", "baseline"}, true
		}
		return []string{"libvpx"}, nil, true
	case codec == "vp8":
		return []string{"libvpx"}, nil, container != "mp4"
	case codec == "vp9" || strings.HasPrefix(codec, "vp09"):
		return []string{"libvpx-vp9"}, []string{"-row-mt", "1"}, true
	case codec == "av1" || strings.HasPrefix(codec, "av01"):
		return []string{"libsvtav1", "libaom-av1"}, nil, true
	case strings.HasPrefix(codec, "avc1") || strings.HasPrefix(codec, "avc3") || codec == "h264":
		return []string{"libx264", "h264_videotoolbox", "h264_mf"}, []string{"-profile:v", avcProfile(codec)}, container != "webm"
	}
	return nil, nil, false
}

// avcProfile reads the profile_idc byte of an RFC 6381 avc1 codec string.
func avcProfile(codec string) string {
	_, rest, ok := strings.Cut(codec, ".")
	if !ok || len(rest) < 2 {
		return "baseline"
	}
	switch strings.ToUpper(rest[:2]) {
	case "4D":
		return "main"
	case "64":
		return "high"
	default:
		return "baseline"
	}
}

func audioEncoder(container, codec string) ([]string, bool) {
	codec = strings.ToLower(codec)
	switch {
	case strings.HasPrefix(codec, "opus"):
		return []string{"libopus", "opus"}, true
	case strings.HasPrefix(codec, "vorbis"):
		return []string{"libvorbis", "vorbis"}, container != "mp4"
	case strings.HasPrefix(codec, "mp4a") || strings.HasPrefix(codec, "aac"):
		return []string{"aac", "libfdk_aac"}, container != "webm"
	}
	return nil, false
}

var _ ports.EncodingRuntime = (*Runtime)(nil)
