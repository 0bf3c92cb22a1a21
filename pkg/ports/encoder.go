package ports

import (
	"image"
	"time"
)

// CapturedFrame is a single committed surface frame.
type CapturedFrame struct {
	Image     image.Image
	Timestamp time.Duration
}

// CaptureStream is the live output of a render surface.
type CaptureStream interface {
	// Frames delivers committed frames in order. The channel is closed
	// when the stream ends.
	Frames() <-chan CapturedFrame

	// Width and Height are the fixed surface dimensions.
	Width() int
	Height() int

	// FrameRate is the nominal rate at which frames are committed.
	FrameRate() float64
}

// RecorderOptions configures a recorder instance.
type RecorderOptions struct {
	// MIMEType is the requested container/codec pair. Empty selects the
	// runtime default.
	MIMEType string

	// VideoBitsPerSecond is a bitrate hint; 0 lets the runtime decide.
	VideoBitsPerSecond int

	// AudioPath is the source audio to mux in, "" for video only.
	AudioPath string
}

// EncodingRuntime is the capture+record facility that turns a frame
// stream into an encoded container.
type EncodingRuntime interface {
	// Name identifies the runtime in logs and reports.
	Name() string

	// IsTypeSupported reports whether the runtime can record the MIME type.
	IsTypeSupported(mimeType string) bool

	// NewRecorder constructs a recorder bound to stream. It fails when the
	// runtime refuses the requested type.
	NewRecorder(stream CaptureStream, opts RecorderOptions) (Recorder, error)
}

// Recorder consumes a capture stream and emits encoded chunks.
type Recorder interface {
	// Start begins consuming the stream.
	Start() error

	// Chunks delivers encoded segments in order. It is closed after the
	// final chunk has been delivered, either after Stop or on failure.
	Chunks() <-chan []byte

	// Err reports a runtime encoding failure once Chunks is closed.
	Err() error

	// Stop signals the end of input and waits for finalization.
	Stop() error

	// MIMEType is the type actually produced.
	MIMEType() string

	// Release frees all resources. Safe to call repeatedly and after failure.
	Release()
}
