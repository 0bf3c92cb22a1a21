// Package mp4decoder is a pure-Go decoder for fragmented MP4 sources whose
// video samples are independently decodable still images (Motion-JPEG).
package mp4decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/disintegration/imaging"

	"github.com/user/vidshrink/pkg/adapters/mp4probe"
	"github.com/user/vidshrink/pkg/ports"
)

// ErrUnsupported is returned for sources this decoder cannot read.
var ErrUnsupported = errors.New("mp4decoder: unsupported source")

// ErrClosed is returned when using a closed session.
var ErrClosed = errors.New("mp4decoder: session closed")

// Decoder implements ports.MediaDecoder.
type Decoder struct{}

// New creates a new Decoder.
func New() *Decoder {
	return &Decoder{}
}

// Supports reports whether data looks like an MJPEG MP4 this decoder reads.
func Supports(data []byte) bool {
	info, err := mp4probe.Probe(data)
	return err == nil && info.VideoCodec == "jpeg"
}

// Open parses the container and indexes every video sample.
func (d *Decoder) Open(ctx context.Context, src ports.MediaSource) (ports.DecodeSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !mp4probe.IsMP4(src.Data) {
		return nil, fmt.Errorf("%w: not an mp4 payload", ErrUnsupported)
	}

	file, err := mp4.DecodeFile(bytes.NewReader(src.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode mp4: %v", ErrUnsupported, err)
	}
	info, err := mp4probe.FromFile(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if info.VideoCodec != "jpeg" {
		return nil, fmt.Errorf("%w: codec %q", ErrUnsupported, info.VideoCodec)
	}
	if !file.IsFragmented() {
		return nil, fmt.Errorf("%w: progressive MP4 not supported, use fragmented MP4", ErrUnsupported)
	}

	samples, err := readSamples(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no video samples", ErrUnsupported)
	}

	return &Session{info: info, samples: samples, current: -1}, nil
}

var _ ports.MediaDecoder = (*Decoder)(nil)

type indexedSample struct {
	at   time.Duration
	data []byte
}

func readSamples(file *mp4.File) ([]indexedSample, error) {
	trak, trex := mp4probe.VideoTrack(file)
	if trak == nil {
		return nil, mp4probe.ErrNoVideoTrack
	}
	timescale := uint64(mp4probe.Timescale(trak))
	trackID := trak.Tkhd.TrackID

	var samples []indexedSample
	for _, seg := range file.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID != trackID {
					continue
				}
				full, err := frag.GetFullSamples(trex)
				if err != nil {
					return nil, fmt.Errorf("get samples: %w", err)
				}
				for _, s := range full {
					samples = append(samples, indexedSample{
						at:   time.Duration(s.DecodeTime * uint64(time.Second) / timescale),
						data: s.Data,
					})
				}
			}
		}
	}

	sort.SliceStable(samples, func(i, j int) bool { return samples[i].at < samples[j].at })
	return samples, nil
}

// Session is a seekable view over indexed samples. Only the frame at the
// current position is kept decoded.
type Session struct {
	info    ports.MediaInfo
	samples []indexedSample

	mu      sync.Mutex
	current int
	frame   image.Image
	closed  bool
}

// Info implements ports.DecodeSession.
func (s *Session) Info() ports.MediaInfo { return s.info }

// Seek selects the last sample at or before position and decodes it.
func (s *Session) Seek(ctx context.Context, position time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	idx := sort.Search(len(s.samples), func(i int) bool { return s.samples[i].at > position }) - 1
	if idx < 0 {
		idx = 0
	}
	if idx == s.current && s.frame != nil {
		return nil
	}

	img, err := imaging.Decode(bytes.NewReader(s.samples[idx].data))
	if err != nil {
		return fmt.Errorf("decode sample %d: %w", idx, err)
	}
	s.current = idx
	s.frame = img
	return nil
}

// Frame implements ports.DecodeSession.
func (s *Session) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.frame == nil {
		return nil, fmt.Errorf("mp4decoder: no frame decoded yet")
	}
	return s.frame, nil
}

// AudioPath returns "" as audio is never materialized.
func (s *Session) AudioPath() string { return "" }

// Close implements ports.DecodeSession.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.frame = nil
	s.samples = nil
	return nil
}

var _ ports.DecodeSession = (*Session)(nil)
