package ffmpegruntime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/user/vidshrink/pkg/adapters/ffmpeg"
	"github.com/user/vidshrink/pkg/ports"
)

// chunkSize is the read size for ffmpeg's stdout.
const chunkSize = 64 * 1024

var errAlreadyStarted = errors.New("ffmpegruntime: recorder already started")

// Recorder feeds RGBA frames to ffmpeg's stdin and emits stdout reads as
// chunks.
type Recorder struct {
	ffmpegPath string
	stream     ports.CaptureStream
	profile    profile
	opts       ports.RecorderOptions

	ctx    context.Context
	cancel context.CancelFunc

	chunks   chan []byte
	stop     chan struct{}
	done     chan struct{}
	feedDone chan struct{}

	stopOnce    sync.Once
	releaseOnce sync.Once

	mu       sync.Mutex
	err      error
	started  bool
	released bool
	stderr   bytes.Buffer
}

func newRecorder(ffmpegPath string, stream ports.CaptureStream, p profile, opts ports.RecorderOptions) *Recorder {
	ctx, cancel := context.WithCancel(context.Background())
	return &Recorder{
		ffmpegPath: ffmpegPath,
		stream:     stream,
		profile:    p,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
		chunks:     make(chan []byte),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		feedDone:   make(chan struct{}),
	}
}

// Args returns the ffmpeg command line without the binary.
func (r *Recorder) Args() []string {
	p := r.profile
	fps := r.stream.FrameRate()
	if fps <= 0 {
		fps = 30
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", r.stream.Width(), r.stream.Height()),
		"-r", strconv.FormatFloat(fps, 'f', 3, 64),
		"-i", "pipe:0",
	}
	if r.opts.AudioPath != "" {
		args = append(args, "-i", r.opts.AudioPath, "-map", "0:v:0", "-map", "1:a:0?", "-shortest")
	}

	args = append(args, "-c:v", p.videoCodec)
	args = append(args, p.videoArgs...)
	args = append(args, "-pix_fmt", "yuv420p")
	if r.opts.VideoBitsPerSecond > 0 {
		args = append(args, "-b:v", strconv.Itoa(r.opts.VideoBitsPerSecond))
	}
	if p.videoCodec == "libvpx" || p.videoCodec == "libvpx-vp9" {
		args = append(args, "-deadline", "realtime", "-cpu-used", "8")
	}
	if r.opts.AudioPath != "" && p.audioCodec != "" {
		args = append(args, "-c:a", p.audioCodec)
	} else {
		args = append(args, "-an")
	}

	if p.muxer == "mp4" {
		args = append(args, "-movflags", "frag_keyframe+empty_moov+default_base_moof")
	}
	args = append(args, "-f", p.muxer, "pipe:1")
	return args
}

// Start launches ffmpeg and begins consuming the stream.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errAlreadyStarted
	}
	if r.released {
		return fmt.Errorf("ffmpegruntime: recorder released")
	}

	cmd := exec.CommandContext(r.ctx, r.ffmpegPath, r.Args()...)
	cmd.Stderr = &lockedWriter{mu: &r.mu, w: &r.stderr}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	r.started = true
	go r.feed(stdin)
	go r.run(cmd, stdout)
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
func (r *Recorder) MIMEType() string { return r.profile.mimeType }

// Stop ends the input and waits for ffmpeg to flush its output.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return nil
	}
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
	return r.Err()
}

// Release kills ffmpeg if it is still running. Safe to call repeatedly.
func (r *Recorder) Release() {
	r.releaseOnce.Do(func() {
		r.mu.Lock()
		r.released = true
		started := r.started
		r.mu.Unlock()

		r.cancel()
		if started {
			<-r.done
			<-r.feedDone
		}
	})
}

func (r *Recorder) fail(err error) {
	r.mu.Lock()
	if r.err == nil && !r.released {
		r.err = err
	}
	r.mu.Unlock()
}

// feed writes frames to stdin until the stream ends, Stop is signalled or
// the recorder is released.
func (r *Recorder) feed(stdin io.WriteCloser) {
	defer close(r.feedDone)
	defer stdin.Close()

	w, h := r.stream.Width(), r.stream.Height()
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))

	write := func(frame ports.CapturedFrame) bool {
		draw.Draw(rgba, rgba.Bounds(), frame.Image, frame.Image.Bounds().Min, draw.Src)
		if _, err := stdin.Write(rgba.Pix); err != nil {
			r.fail(fmt.Errorf("failed to write frame: %w", err))
			return false
		}
		return true
	}

	frames := r.stream.Frames()
	for {
		select {
		case frame, ok := <-frames:
			if !ok || !write(frame) {
				return
			}
		case <-r.stop:
			for {
				select {
				case frame, ok := <-frames:
					if !ok || !write(frame) {
						return
					}
				default:
					return
				}
			}
		case <-r.ctx.Done():
			return
		}
	}
}

// run forwards stdout reads as chunks and reports ffmpeg's exit status.
func (r *Recorder) run(cmd *exec.Cmd, stdout io.Reader) {
	defer close(r.done)
	defer close(r.chunks)

	for {
		buf := make([]byte, chunkSize)
		n, err := stdout.Read(buf)
		if n > 0 {
			select {
			case r.chunks <- buf[:n]:
			case <-r.ctx.Done():
				cmd.Wait()
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				r.fail(fmt.Errorf("read ffmpeg output: %w", err))
			}
			break
		}
	}

	if err := cmd.Wait(); err != nil {
		r.mu.Lock()
		stderr := r.stderr.String()
		r.mu.Unlock()
		r.fail(fmt.Errorf("ffmpeg encoding failed: %w\nstderr: %s", err, ffmpeg.Tail(stderr, 1024)))
	}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

var _ ports.Recorder = (*Recorder)(nil)
