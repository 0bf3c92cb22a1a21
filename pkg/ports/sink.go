package ports

import (
	"image"
)

// DebugSink abstracts debug output for intermediate results.
type DebugSink interface {
	// Enabled returns true if debug output is enabled.
	Enabled() bool

	// SaveProbeJSON saves the source metadata as JSON.
	SaveProbeJSON(data []byte) error

	// SaveAttemptsJSON saves the ladder trace as JSON.
	SaveAttemptsJSON(data []byte) error

	// SaveRenderedFrame saves a frame committed during the given attempt.
	SaveRenderedFrame(attempt, index int, img image.Image) error

	// SaveThumbnail saves the encoded poster image.
	SaveThumbnail(data []byte, ext string) error
}
