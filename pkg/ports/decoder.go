package ports

import (
	"context"
	"image"
	"time"
)

// MediaInfo describes the decodable properties of a source video.
type MediaInfo struct {
	Width      int
	Height     int
	Duration   time.Duration
	FrameRate  float64 // Native frame rate, 0 when unknown
	HasAudio   bool
	Container  string // e.g. "mp4", "webm"
	VideoCodec string // e.g. "avc1", "vp9"
}

// MediaSource is the raw payload handed to a decoder.
type MediaSource struct {
	Data     []byte
	MIMEType string
	Filename string
}

// MediaDecoder opens decode sessions over an in-memory source.
type MediaDecoder interface {
	// Open prepares a new, independent decode session.
	// A source the decoder cannot read yields an error wrapping the
	// decoder's unreadable-source sentinel.
	Open(ctx context.Context, src MediaSource) (DecodeSession, error)
}

// DecodeSession is a seekable view of one source. Sessions are not shared
// between attempts and must be closed by their owner.
type DecodeSession interface {
	// Info returns the source metadata.
	Info() MediaInfo

	// Seek moves the playback position. It blocks until the frame at
	// position is available or ctx is done.
	Seek(ctx context.Context, position time.Duration) error

	// Frame returns the frame at the current position.
	Frame() (image.Image, error)

	// AudioPath returns a local path to the source audio if the session
	// materialized one, or "" when audio is not addressable.
	AudioPath() string

	// Close releases the session. Calling Close more than once is safe.
	Close() error
}
