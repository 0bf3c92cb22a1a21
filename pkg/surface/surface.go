// Package surface provides the render surface an attempt draws into and the
// capture stream a recorder consumes.
package surface

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/user/vidshrink/pkg/ports"
)

// ErrStreamEnded is returned when committing to a stream that was ended.
var ErrStreamEnded = errors.New("surface: capture stream ended")

// DefaultBuffer is the number of committed frames a stream holds before
// Commit blocks on the consumer.
const DefaultBuffer = 8

// Stream is a channel-backed ports.CaptureStream.
type Stream struct {
	width, height int
	frameRate     float64

	frames chan ports.CapturedFrame
	done   chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewStream creates a stream with the given geometry and buffer size.
func NewStream(width, height int, frameRate float64, buffer int) *Stream {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream{
		width:     width,
		height:    height,
		frameRate: frameRate,
		frames:    make(chan ports.CapturedFrame, buffer),
		done:      make(chan struct{}),
	}
}

// Frames implements ports.CaptureStream.
func (s *Stream) Frames() <-chan ports.CapturedFrame { return s.frames }

// Width implements ports.CaptureStream.
func (s *Stream) Width() int { return s.width }

// Height implements ports.CaptureStream.
func (s *Stream) Height() int { return s.height }

// FrameRate implements ports.CaptureStream.
func (s *Stream) FrameRate() float64 { return s.frameRate }

// Push delivers a frame, blocking until the consumer accepts it, ctx is done
// or the stream ends.
func (s *Stream) Push(ctx context.Context, frame ports.CapturedFrame) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStreamEnded
	}
	select {
	case s.frames <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStreamEnded
	}
}

// End closes the stream. Blocked pushes return ErrStreamEnded.
// Calling End more than once is safe.
func (s *Stream) End() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.frames)
		s.mu.Unlock()
	})
}

// Ended reports whether End has been called.
func (s *Stream) Ended() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

var _ ports.CaptureStream = (*Stream)(nil)

// Surface is a raster canvas bound to a capture stream. Each attempt owns
// exactly one surface.
type Surface struct {
	canvas    ports.Canvas
	stream    *Stream
	committed int

	releaseOnce sync.Once
}

// New creates a surface of the given size whose stream runs at frameRate.
func New(renderer ports.Renderer, width, height int, frameRate float64) *Surface {
	return &Surface{
		canvas: renderer.CreateCanvas(width, height, color.Black),
		stream: NewStream(width, height, frameRate, DefaultBuffer),
	}
}

// Width returns the surface width.
func (s *Surface) Width() int { return s.stream.width }

// Height returns the surface height.
func (s *Surface) Height() int { return s.stream.height }

// Stream returns the capture stream fed by Commit.
func (s *Surface) Stream() ports.CaptureStream { return s.stream }

// Draw paints img scaled to fill the surface.
func (s *Surface) Draw(img image.Image) {
	s.canvas.Clear(color.Black)
	s.canvas.DrawImageScaled(img, 0, 0, s.stream.width, s.stream.height)
}

// Commit snapshots the surface and pushes it to the stream.
func (s *Surface) Commit(ctx context.Context, timestamp time.Duration) (image.Image, error) {
	frame := ports.CapturedFrame{Image: s.canvas.ToImage(), Timestamp: timestamp}
	if err := s.stream.Push(ctx, frame); err != nil {
		return nil, err
	}
	s.committed++
	return frame.Image, nil
}

// Committed returns the number of frames pushed so far.
func (s *Surface) Committed() int { return s.committed }

// End signals that no more frames will be committed.
func (s *Surface) End() { s.stream.End() }

// Release ends the stream and drops the canvas. Safe to call repeatedly.
func (s *Surface) Release() {
	s.releaseOnce.Do(func() {
		s.stream.End()
		s.canvas = nil
	})
}
