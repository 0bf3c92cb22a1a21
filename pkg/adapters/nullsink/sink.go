// Package nullsink provides a debug sink that discards everything.
package nullsink

import (
	"image"

	"github.com/user/vidshrink/pkg/ports"
)

// Sink is a no-op ports.DebugSink.
type Sink struct{}

// New creates a new Sink.
func New() *Sink {
	return &Sink{}
}

// Enabled always returns false so callers skip building debug payloads.
func (s *Sink) Enabled() bool { return false }

func (s *Sink) SaveProbeJSON(data []byte) error                        { return nil }
func (s *Sink) SaveAttemptsJSON(data []byte) error                     { return nil }
func (s *Sink) SaveRenderedFrame(attempt, index int, img image.Image) error { return nil }
func (s *Sink) SaveThumbnail(data []byte, ext string) error            { return nil }

var _ ports.DebugSink = (*Sink)(nil)
