package mocks

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/user/vidshrink/pkg/ports"
)

// ErrRefused is returned by EncodingRuntime.NewRecorder for unsupported types.
var ErrRefused = errors.New("mock runtime: type refused")

// SizeFunc returns the number of bytes a recorder emits for a recording.
type SizeFunc func(mimeType string, width, height, frames int) int

// DefaultSize emits roughly one byte per 50 pixels per frame, at least 1 KiB.
func DefaultSize(mimeType string, width, height, frames int) int {
	n := width * height * frames / 50
	if n < 1024 {
		n = 1024
	}
	return n
}

// EncodingRuntime is a synthetic ports.EncodingRuntime with a per-MIME
// capability set and a deterministic size model.
type EncodingRuntime struct {
	// Supported lists accepted MIME types. Nil accepts everything.
	Supported map[string]bool

	// Refuse lists types IsTypeSupported reports but NewRecorder rejects.
	Refuse map[string]bool

	// DefaultMIME is produced when a recorder is asked for "".
	DefaultMIME string

	// Size computes the output size. Nil uses DefaultSize.
	Size SizeFunc

	// FailWith makes recorders for matching MIME substrings fail with the
	// given error after the first frame.
	FailWith map[string]error

	// ChunkFrames sets how many frames go into one emitted chunk.
	ChunkFrames int

	mu         sync.Mutex
	ProbeCalls []string
	Recorders  []*Recorder
}

// NewEncodingRuntime returns a runtime accepting the given types.
func NewEncodingRuntime(supported ...string) *EncodingRuntime {
	r := &EncodingRuntime{DefaultMIME: "video/webm"}
	if len(supported) > 0 {
		r.Supported = make(map[string]bool, len(supported))
		for _, s := range supported {
			r.Supported[s] = true
		}
	}
	return r
}

func (m *EncodingRuntime) Name() string { return "mock" }

func (m *EncodingRuntime) IsTypeSupported(mimeType string) bool {
	m.mu.Lock()
	m.ProbeCalls = append(m.ProbeCalls, mimeType)
	m.mu.Unlock()
	if m.Supported == nil {
		return true
	}
	return m.Supported[mimeType]
}

func (m *EncodingRuntime) NewRecorder(stream ports.CaptureStream, opts ports.RecorderOptions) (ports.Recorder, error) {
	mimeType := opts.MIMEType
	if mimeType != "" {
		if m.Refuse[mimeType] || (m.Supported != nil && !m.Supported[mimeType]) {
			return nil, fmt.Errorf("%w: %s", ErrRefused, mimeType)
		}
	} else {
		mimeType = m.DefaultMIME
	}

	size := m.Size
	if size == nil {
		size = DefaultSize
	}
	var failErr error
	for key, err := range m.FailWith {
		if strings.Contains(mimeType, key) {
			failErr = err
		}
	}
	chunkFrames := m.ChunkFrames
	if chunkFrames <= 0 {
		chunkFrames = 10
	}

	rec := &Recorder{
		stream:      stream,
		opts:        opts,
		mimeType:    mimeType,
		size:        size,
		failErr:     failErr,
		chunkFrames: chunkFrames,
		chunks:      make(chan []byte),
		stop:        make(chan struct{}),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	m.mu.Lock()
	m.Recorders = append(m.Recorders, rec)
	m.mu.Unlock()
	return rec, nil
}

// RecorderCount returns how many recorders were constructed.
func (m *EncodingRuntime) RecorderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Recorders)
}

// AllReleased reports whether every constructed recorder was released.
func (m *EncodingRuntime) AllReleased() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Recorders {
		if r.ReleaseCount() == 0 {
			return false
		}
	}
	return true
}

var _ ports.EncodingRuntime = (*EncodingRuntime)(nil)

// Recorder is a synthetic ports.Recorder. It counts frames and, on
// finalization, emits the size model's byte count split into chunks. Chunk
// i is filled with byte(i) so ordering can be checked.
type Recorder struct {
	stream      ports.CaptureStream
	opts        ports.RecorderOptions
	mimeType    string
	size        SizeFunc
	failErr     error
	chunkFrames int

	chunks chan []byte
	stop   chan struct{}
	quit   chan struct{}
	done   chan struct{}

	stopOnce    sync.Once
	releaseOnce sync.Once

	mu       sync.Mutex
	err      error
	frames   int
	started  bool
	released int
}

func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("mock recorder: already started")
	}
	r.started = true
	r.mu.Unlock()
	go r.run()
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)
	defer close(r.chunks)

	frames := r.stream.Frames()
	for frames != nil {
		select {
		case _, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			r.mu.Lock()
			r.frames++
			n := r.frames
			r.mu.Unlock()
			if r.failErr != nil && n >= 1 {
				r.mu.Lock()
				r.err = r.failErr
				r.mu.Unlock()
				return
			}
		case <-r.stop:
			// Frames already committed before Stop still count.
			r.drain(frames)
			frames = nil
		case <-r.quit:
			return
		}
	}
	r.finalize()
}

func (r *Recorder) drain(frames <-chan ports.CapturedFrame) {
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
			r.mu.Lock()
			r.frames++
			r.mu.Unlock()
		default:
			return
		}
	}
}

func (r *Recorder) finalize() {
	r.mu.Lock()
	frames := r.frames
	r.mu.Unlock()

	total := r.size(r.mimeType, r.stream.Width(), r.stream.Height(), frames)
	if total <= 0 {
		return
	}
	count := frames / r.chunkFrames
	if count < 1 {
		count = 1
	}
	per := total / count
	for i := 0; i < count; i++ {
		n := per
		if i == count-1 {
			n = total - per*(count-1)
		}
		chunk := make([]byte, n)
		for j := range chunk {
			chunk[j] = byte(i)
		}
		select {
		case r.chunks <- chunk:
		case <-r.quit:
			return
		}
	}
}

func (r *Recorder) Chunks() <-chan []byte { return r.chunks }

func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) Stop() error {
	r.stopOnce.Do(func() { close(r.stop) })
	select {
	case <-r.done:
	case <-r.quit:
	}
	return r.Err()
}

func (r *Recorder) MIMEType() string { return r.mimeType }

func (r *Recorder) Release() {
	r.releaseOnce.Do(func() { close(r.quit) })
	r.mu.Lock()
	r.released++
	r.mu.Unlock()
}

// Options returns the options the recorder was built with.
func (r *Recorder) Options() ports.RecorderOptions { return r.opts }

// FrameCount returns the number of frames consumed.
func (r *Recorder) FrameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// ReleaseCount returns the number of Release calls.
func (r *Recorder) ReleaseCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

var _ ports.Recorder = (*Recorder)(nil)
