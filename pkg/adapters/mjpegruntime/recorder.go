package mjpegruntime

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/disintegration/imaging"

	"github.com/user/vidshrink/pkg/ports"
)

// timescale is the media timescale of the video track.
const timescale = 90000

var errAlreadyStarted = errors.New("mjpegruntime: recorder already started")

type sample struct {
	data       []byte
	decodeTime uint64
}

// Recorder encodes frames to JPEG and emits an init segment followed by
// one moof+mdat chunk per fragment.
type Recorder struct {
	stream         ports.CaptureStream
	quality        int
	fragmentFrames int
	sampleDur      uint32

	chunks chan []byte
	stop   chan struct{}
	quit   chan struct{}
	done   chan struct{}

	stopOnce    sync.Once
	releaseOnce sync.Once

	mu      sync.Mutex
	err     error
	started bool

	pending  []sample
	sequence uint32
	initSent bool
}

func newRecorder(stream ports.CaptureStream, quality, fragmentFrames int) *Recorder {
	fps := stream.FrameRate()
	if fps <= 0 {
		fps = 30
	}
	return &Recorder{
		stream:         stream,
		quality:        quality,
		fragmentFrames: fragmentFrames,
		sampleDur:      uint32(math.Round(timescale / fps)),
		chunks:         make(chan []byte),
		stop:           make(chan struct{}),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start implements ports.Recorder.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errAlreadyStarted
	}
	r.started = true
	go r.run()
	return nil
}

// Chunks implements ports.Recorder.
func (r *Recorder) Chunks() <-chan []byte { return r.chunks }

// Err implements ports.Recorder.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// MIMEType implements ports.Recorder.
func (r *Recorder) MIMEType() string { return MIMEType }

// Stop signals the end of input and waits until the last fragment has been
// delivered or the recorder was released.
func (r *Recorder) Stop() error {
	if !r.isStarted() {
		return nil
	}
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
	return r.Err()
}

// Release aborts the recorder if it is still running.
func (r *Recorder) Release() {
	r.releaseOnce.Do(func() {
		close(r.quit)
		if r.isStarted() {
			<-r.done
		}
	})
}

func (r *Recorder) isStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *Recorder) fail(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
}

func (r *Recorder) run() {
	defer close(r.done)
	defer close(r.chunks)

	frames := r.stream.Frames()
	for frames != nil {
		select {
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			if !r.add(frame) {
				return
			}
		case <-r.stop:
			if !r.drain(frames) {
				return
			}
			frames = nil
		case <-r.quit:
			return
		}
	}

	if !r.ensureInit() {
		return
	}
	r.flush()
}

// drain consumes frames already committed when Stop was signalled.
func (r *Recorder) drain(frames <-chan ports.CapturedFrame) bool {
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return true
			}
			if !r.add(frame) {
				return false
			}
		default:
			return true
		}
	}
}

// add encodes one frame and flushes a fragment when it is full. It returns
// false when the recorder must stop.
func (r *Recorder) add(frame ports.CapturedFrame) bool {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame.Image, imaging.JPEG, imaging.JPEGQuality(r.quality)); err != nil {
		r.fail(fmt.Errorf("encode frame: %w", err))
		return false
	}
	if !r.ensureInit() {
		return false
	}

	decodeTime := uint64(frame.Timestamp.Seconds()*timescale + 0.5)
	r.pending = append(r.pending, sample{data: buf.Bytes(), decodeTime: decodeTime})
	if len(r.pending) >= r.fragmentFrames {
		return r.flush()
	}
	return true
}

func (r *Recorder) ensureInit() bool {
	if r.initSent {
		return true
	}
	data, err := buildInit(r.stream.Width(), r.stream.Height())
	if err != nil {
		r.fail(err)
		return false
	}
	r.initSent = true
	return r.emit(data)
}

func (r *Recorder) flush() bool {
	if len(r.pending) == 0 {
		return true
	}
	r.sequence++
	data, err := buildFragment(r.sequence, r.pending, r.sampleDur)
	r.pending = r.pending[:0]
	if err != nil {
		r.fail(err)
		return false
	}
	return r.emit(data)
}

func (r *Recorder) emit(data []byte) bool {
	select {
	case r.chunks <- data:
		return true
	case <-r.quit:
		return false
	}
}

// buildInit returns ftyp+moov for a single MJPEG video track.
func buildInit(width, height int) ([]byte, error) {
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(timescale, "video", "und")

	trak := init.Moov.Trak
	entry := mp4.CreateVisualSampleEntryBox("jpeg", uint16(width), uint16(height), nil)
	trak.Mdia.Minf.Stbl.Stsd.AddChild(entry)
	trak.Tkhd.Width = mp4.Fixed32(width << 16)
	trak.Tkhd.Height = mp4.Fixed32(height << 16)

	var buf bytes.Buffer
	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso6", "mp41"})
	if err := ftyp.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode ftyp: %w", err)
	}
	if err := init.Moov.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode moov: %w", err)
	}
	return buf.Bytes(), nil
}

// buildFragment returns moof+mdat holding the given samples. Every JPEG
// sample is a sync sample.
func buildFragment(sequence uint32, samples []sample, dur uint32) ([]byte, error) {
	frag, err := mp4.CreateFragment(sequence, 1)
	if err != nil {
		return nil, fmt.Errorf("create fragment: %w", err)
	}
	for _, s := range samples {
		frag.AddFullSample(mp4.FullSample{
			Sample: mp4.Sample{
				Flags: mp4.SyncSampleFlags,
				Size:  uint32(len(s.data)),
				Dur:   dur,
			},
			DecodeTime: s.decodeTime,
			Data:       s.data,
		})
	}

	var buf bytes.Buffer
	if err := frag.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode fragment: %w", err)
	}
	return buf.Bytes(), nil
}

var _ ports.Recorder = (*Recorder)(nil)
