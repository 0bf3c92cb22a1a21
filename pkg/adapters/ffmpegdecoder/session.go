package ffmpegdecoder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/user/vidshrink/pkg/ports"
)

// ErrClosed is returned when using a closed session.
var ErrClosed = errors.New("ffmpegdecoder: session closed")

// maxForwardRead is the largest gap read frame by frame before the reader is
// restarted at the new position.
const maxForwardRead = 10 * time.Second

// Session streams RGBA frames at the source's native rate. Forward seeks
// read ahead; backward or distant seeks restart ffmpeg with -ss.
type Session struct {
	ffmpegPath string
	fs         ports.FileSystem
	path       string
	info       ports.MediaInfo
	fps        float64

	mu     sync.Mutex
	reader *frameReader
	frame  image.Image
	closed bool
}

func newSession(ffmpegPath string, fs ports.FileSystem, path string, info ports.MediaInfo) *Session {
	fps := info.FrameRate
	if fps <= 0 || fps > 240 {
		fps = 30
	}
	return &Session{ffmpegPath: ffmpegPath, fs: fs, path: path, info: info, fps: fps}
}

// Info implements ports.DecodeSession.
func (s *Session) Info() ports.MediaInfo { return s.info }

// AudioPath returns the materialized source when it carries audio.
func (s *Session) AudioPath() string {
	if !s.info.HasAudio {
		return ""
	}
	return s.path
}

// Seek positions the session at the last frame at or before position.
func (s *Session) Seek(ctx context.Context, position time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	r := s.reader
	if r == nil || position < r.position() || position-r.position() > maxForwardRead {
		if r != nil {
			r.close()
		}
		var err error
		r, err = startReader(s.ffmpegPath, s.path, position, s.fps, s.info.Width, s.info.Height)
		if err != nil {
			s.reader = nil
			return err
		}
		s.reader = r
	}

	stop := context.AfterFunc(ctx, r.close)
	defer stop()

	img, err := r.advance(position)
	if err != nil {
		r.close()
		s.reader = nil
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
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
		return nil, fmt.Errorf("ffmpegdecoder: no frame decoded yet")
	}
	return s.frame, nil
}

// Close stops ffmpeg and removes the temporary source.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.reader != nil {
		s.reader.close()
		s.reader = nil
	}
	s.frame = nil
	return s.fs.Remove(s.path)
}

var _ ports.DecodeSession = (*Session)(nil)

// frameReader is one running ffmpeg process emitting raw RGBA frames.
type frameReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	cancel context.CancelFunc

	start  time.Duration
	fps    float64
	width  int
	height int

	read    int // frames read so far
	current *image.RGBA

	closeOnce sync.Once
}

func startReader(ffmpegPath, path string, start time.Duration, fps float64, width, height int) (*frameReader, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(start.Seconds(), 'f', 3, 64),
		"-i", path,
		"-an",
		"-vf", "fps="+strconv.FormatFloat(fps, 'f', 3, 64),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	return &frameReader{
		cmd:    cmd,
		stdout: stdout,
		cancel: cancel,
		start:  start,
		fps:    fps,
		width:  width,
		height: height,
	}, nil
}

// position is the timestamp of the current frame, or start before any read.
func (r *frameReader) position() time.Duration {
	if r.read == 0 {
		return r.start
	}
	return r.start + time.Duration(float64(r.read-1)/r.fps*float64(time.Second))
}

// advance reads frames until the current frame is the last one at or
// before position. Reaching the end keeps the final frame.
func (r *frameReader) advance(position time.Duration) (image.Image, error) {
	want := int((position-r.start).Seconds()*r.fps) + 1
	if want < 1 {
		want = 1
	}
	for r.read < want {
		frame := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
		if _, err := io.ReadFull(r.stdout, frame.Pix); err != nil {
			if (err == io.EOF || err == io.ErrUnexpectedEOF) && r.current != nil {
				return r.current, nil
			}
			return nil, fmt.Errorf("read frame at %v: %w", position, err)
		}
		r.current = frame
		r.read++
	}
	return r.current, nil
}

func (r *frameReader) close() {
	r.closeOnce.Do(func() {
		r.cancel()
		r.cmd.Wait()
	})
}
