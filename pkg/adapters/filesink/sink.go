// Package filesink writes debug output under a base directory:
//
//	probe.json
//	attempts.json
//	frames/attempt-N/frame-NNNN.png
//	thumbnail.<ext>
package filesink

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/user/vidshrink/pkg/ports"
)

// Sink saves debug output to files.
type Sink struct {
	baseDir  string
	fs       ports.FileSystem
	renderer ports.Renderer
}

// New creates a new Sink.
func New(baseDir string, fs ports.FileSystem, renderer ports.Renderer) *Sink {
	return &Sink{
		baseDir:  baseDir,
		fs:       fs,
		renderer: renderer,
	}
}

// Enabled returns true as this sink saves output.
func (s *Sink) Enabled() bool {
	return true
}

// SaveProbeJSON saves the source metadata.
func (s *Sink) SaveProbeJSON(data []byte) error {
	return s.fs.WriteFile(filepath.Join(s.baseDir, "probe.json"), data)
}

// SaveAttemptsJSON saves the ladder trace.
func (s *Sink) SaveAttemptsJSON(data []byte) error {
	return s.fs.WriteFile(filepath.Join(s.baseDir, "attempts.json"), data)
}

// SaveRenderedFrame saves a sampled surface frame as PNG.
func (s *Sink) SaveRenderedFrame(attempt, index int, img image.Image) error {
	dir := filepath.Join(s.baseDir, "frames", fmt.Sprintf("attempt-%d", attempt))
	if err := s.fs.MkdirAll(dir); err != nil {
		return err
	}
	data, err := s.renderer.EncodeImage(img, ports.FormatPNG, 0)
	if err != nil {
		return fmt.Errorf("encode rendered frame: %w", err)
	}
	return s.fs.WriteFile(filepath.Join(dir, fmt.Sprintf("frame-%04d.png", index)), data)
}

// SaveThumbnail saves the encoded poster.
func (s *Sink) SaveThumbnail(data []byte, ext string) error {
	if ext == "" {
		ext = "jpg"
	}
	return s.fs.WriteFile(filepath.Join(s.baseDir, "thumbnail."+ext), data)
}

var _ ports.DebugSink = (*Sink)(nil)
