// Package ffmpegdecoder decodes any source ffmpeg can read. Metadata comes
// from ffprobe; frames are streamed from one ffmpeg process per session and
// read forward as the caller seeks.
package ffmpegdecoder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/user/vidshrink/pkg/adapters/ffmpeg"
	"github.com/user/vidshrink/pkg/ports"
)

// ErrUnsupported is returned for sources ffmpeg cannot read.
var ErrUnsupported = errors.New("ffmpegdecoder: unsupported source")

// Decoder implements ports.MediaDecoder.
type Decoder struct {
	ffmpegPath  string
	ffprobePath string
	fs          ports.FileSystem
}

// New locates ffmpeg and ffprobe. Sources are materialized through fs.
func New(fs ports.FileSystem) (*Decoder, error) {
	ffmpegPath, err := ffmpeg.FindFFmpeg()
	if err != nil {
		return nil, err
	}
	ffprobePath, err := ffmpeg.FindFFprobe()
	if err != nil {
		return nil, err
	}
	return &Decoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, fs: fs}, nil
}

// Open writes the source to a temporary file and probes it.
func (d *Decoder) Open(ctx context.Context, src ports.MediaSource) (ports.DecodeSession, error) {
	if len(src.Data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUnsupported)
	}

	path, err := d.fs.TempFile("vidshrink-src-*"+sourceExt(src), src.Data)
	if err != nil {
		return nil, fmt.Errorf("materialize source: %w", err)
	}

	info, err := runProbe(ctx, d.ffprobePath, path)
	if err != nil {
		d.fs.Remove(path)
		if errors.Is(err, ErrUnsupported) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	return newSession(d.ffmpegPath, d.fs, path, info), nil
}

func sourceExt(src ports.MediaSource) string {
	if ext := filepath.Ext(src.Filename); ext != "" {
		return ext
	}
	mediaType, _, _ := strings.Cut(src.MIMEType, ";")
	switch strings.TrimSpace(mediaType) {
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	case "video/x-matroska":
		return ".mkv"
	}
	return ""
}

var _ ports.MediaDecoder = (*Decoder)(nil)
