package mocks

import (
	"image"
	"sync"

	"github.com/user/vidshrink/pkg/ports"
)

// DebugSink is a mock implementation of ports.DebugSink.
type DebugSink struct {
	mu sync.RWMutex

	enabled bool

	ProbeJSON      []byte
	AttemptsJSON   []byte
	RenderedFrames map[int][]int // attempt -> frame indices
	Thumbnail      []byte
	ThumbnailExt   string
}

// NewDebugSink creates a new mock DebugSink.
func NewDebugSink(enabled bool) *DebugSink {
	return &DebugSink{
		enabled:        enabled,
		RenderedFrames: make(map[int][]int),
	}
}

func (m *DebugSink) Enabled() bool {
	return m.enabled
}

func (m *DebugSink) SaveProbeJSON(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProbeJSON = data
	return nil
}

func (m *DebugSink) SaveAttemptsJSON(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AttemptsJSON = data
	return nil
}

func (m *DebugSink) SaveRenderedFrame(attempt, index int, img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RenderedFrames[attempt] = append(m.RenderedFrames[attempt], index)
	return nil
}

func (m *DebugSink) SaveThumbnail(data []byte, ext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Thumbnail = data
	m.ThumbnailExt = ext
	return nil
}

// GetAttemptsJSON returns the saved ladder trace.
func (m *DebugSink) GetAttemptsJSON() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.AttemptsJSON
}

var _ ports.DebugSink = (*DebugSink)(nil)
