package mocks

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/ports"
)

// MediaDecoder is a synthetic ports.MediaDecoder. Every Open returns a new
// DecodeSession reporting Info; an empty payload is unreadable.
type MediaDecoder struct {
	Info ports.MediaInfo

	OpenFunc  func(ctx context.Context, src ports.MediaSource) (ports.DecodeSession, error)
	SeekFunc  func(ctx context.Context, position time.Duration) error
	FrameFunc func(position time.Duration) (image.Image, error)
	AudioPath string

	mu       sync.Mutex
	Sessions []*DecodeSession
}

// NewMediaDecoder returns a decoder that reports info for every source.
func NewMediaDecoder(info ports.MediaInfo) *MediaDecoder {
	return &MediaDecoder{Info: info}
}

func (m *MediaDecoder) Open(ctx context.Context, src ports.MediaSource) (ports.DecodeSession, error) {
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, src)
	}
	if len(src.Data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", pipeline.ErrUnreadableSource)
	}
	s := &DecodeSession{
		info:      m.Info,
		seekFunc:  m.SeekFunc,
		frameFunc: m.FrameFunc,
		audioPath: m.AudioPath,
	}
	m.mu.Lock()
	m.Sessions = append(m.Sessions, s)
	m.mu.Unlock()
	return s, nil
}

// OpenCount returns the number of sessions opened so far.
func (m *MediaDecoder) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sessions)
}

// AllClosed reports whether every opened session was closed.
func (m *MediaDecoder) AllClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.Sessions {
		if s.CloseCount() == 0 {
			return false
		}
	}
	return true
}

var _ ports.MediaDecoder = (*MediaDecoder)(nil)

// DecodeSession is a synthetic ports.DecodeSession.
type DecodeSession struct {
	info      ports.MediaInfo
	seekFunc  func(ctx context.Context, position time.Duration) error
	frameFunc func(position time.Duration) (image.Image, error)
	audioPath string

	mu       sync.Mutex
	position time.Duration
	seeks    []time.Duration
	frames   int
	closed   int
	frame    *image.RGBA
}

func (s *DecodeSession) Info() ports.MediaInfo { return s.info }

func (s *DecodeSession) Seek(ctx context.Context, position time.Duration) error {
	if s.seekFunc != nil {
		if err := s.seekFunc(ctx, position); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = position
	s.seeks = append(s.seeks, position)
	return nil
}

func (s *DecodeSession) Frame() (image.Image, error) {
	s.mu.Lock()
	pos := s.position
	s.frames++
	s.mu.Unlock()
	if s.frameFunc != nil {
		return s.frameFunc(pos)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		s.frame = image.NewRGBA(image.Rect(0, 0, 4, 4))
		s.frame.Set(0, 0, color.RGBA{R: 255, A: 255})
	}
	return s.frame, nil
}

func (s *DecodeSession) AudioPath() string { return s.audioPath }

func (s *DecodeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Seeks returns the positions seeked to, in order.
func (s *DecodeSession) Seeks() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.seeks...)
}

// FrameCalls returns the number of Frame calls.
func (s *DecodeSession) FrameCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// CloseCount returns the number of Close calls.
func (s *DecodeSession) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ ports.DecodeSession = (*DecodeSession)(nil)

// StallingSeek returns a SeekFunc that blocks until ctx is done from the
// given position on.
func StallingSeek(from time.Duration) func(ctx context.Context, position time.Duration) error {
	return func(ctx context.Context, position time.Duration) error {
		if position < from {
			return nil
		}
		<-ctx.Done()
		return ctx.Err()
	}
}
