package chromeruntime

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/disintegration/imaging"

	"github.com/user/vidshrink/pkg/ports"
)

const (
	// timesliceMs is the MediaRecorder timeslice; a chunk is produced at
	// least this often.
	timesliceMs = 1000

	// pollInterval is how often encoded chunks are pulled from the page.
	pollInterval = 500 * time.Millisecond
)

var errAlreadyStarted = errors.New("chromeruntime: recorder already started")

type takeResult struct {
	Chunks []string `json:"chunks"`
	Error  string   `json:"error"`
}

// Recorder paces frames onto the page canvas in real time, because the
// browser timestamps captured frames with its own clock.
type Recorder struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stream  ports.CaptureStream
	opts    ports.RecorderOptions
	quality int

	chunks chan []byte
	stop   chan struct{}
	done   chan struct{}

	stopOnce    sync.Once
	releaseOnce sync.Once

	mu       sync.Mutex
	err      error
	started  bool
	mimeType string
}

func newRecorder(ctx context.Context, cancel context.CancelFunc, stream ports.CaptureStream, opts ports.RecorderOptions, quality int) *Recorder {
	return &Recorder{
		ctx:      ctx,
		cancel:   cancel,
		stream:   stream,
		opts:     opts,
		quality:  quality,
		chunks:   make(chan []byte),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		mimeType: opts.MIMEType,
	}
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// Start sets up the page and starts MediaRecorder.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errAlreadyStarted
	}

	var actual string
	initExpr := fmt.Sprintf(`window.__vs.init(%d, %d, %q, %d, %d)`,
		r.stream.Width(), r.stream.Height(), r.opts.MIMEType, r.opts.VideoBitsPerSecond, timesliceMs)
	var ok bool
	err := chromedp.Run(r.ctx,
		chromedp.Navigate("about:blank"),
		chromedp.Evaluate(pageScript, &ok),
		chromedp.Evaluate(initExpr, &actual),
	)
	if err != nil {
		return fmt.Errorf("start MediaRecorder: %w", err)
	}
	if actual != "" {
		r.mimeType = actual
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

// MIMEType returns the type reported by MediaRecorder.
func (r *Recorder) MIMEType() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mimeType
}

// Stop implements ports.Recorder.
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

// Release closes the tab. Safe to call repeatedly.
func (r *Recorder) Release() {
	r.releaseOnce.Do(func() {
		r.cancel()
		r.mu.Lock()
		started := r.started
		r.mu.Unlock()
		if started {
			<-r.done
		}
	})
}

func (r *Recorder) fail(err error) {
	r.mu.Lock()
	if r.err == nil && r.ctx.Err() == nil {
		r.err = err
	}
	r.mu.Unlock()
}

func (r *Recorder) run() {
	defer close(r.done)
	defer close(r.chunks)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var origin time.Time
	frames := r.stream.Frames()
	stop := r.stop
	for frames != nil {
		select {
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			if origin.IsZero() {
				origin = time.Now().Add(-frame.Timestamp)
			}
			if !r.pace(origin.Add(frame.Timestamp)) || !r.draw(frame) {
				return
			}
		case <-ticker.C:
			if !r.pull(`window.__vs.take()`) {
				return
			}
		case <-stop:
			// Frames already committed before Stop are still drawn.
			stop = nil
		case <-r.ctx.Done():
			return
		}
	}

	r.pull(`window.__vs.stop()`)
}

// pace sleeps until the frame's wall-clock slot.
func (r *Recorder) pace(at time.Time) bool {
	wait := time.Until(at)
	if wait <= 0 {
		return true
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Recorder) draw(frame ports.CapturedFrame) bool {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame.Image, imaging.JPEG, imaging.JPEGQuality(r.quality)); err != nil {
		r.fail(fmt.Errorf("encode frame: %w", err))
		return false
	}
	expr := fmt.Sprintf(`window.__vs.draw(%q)`, base64.StdEncoding.EncodeToString(buf.Bytes()))
	var ok bool
	if err := chromedp.Run(r.ctx, chromedp.Evaluate(expr, &ok, awaitPromise)); err != nil {
		r.fail(fmt.Errorf("draw frame: %w", err))
		return false
	}
	return true
}

// pull evaluates expr, which resolves to a takeResult, and emits its chunks.
func (r *Recorder) pull(expr string) bool {
	var res takeResult
	if err := chromedp.Run(r.ctx, chromedp.Evaluate(expr, &res, awaitPromise)); err != nil {
		r.fail(fmt.Errorf("collect chunks: %w", err))
		return false
	}
	if res.Error != "" {
		r.fail(fmt.Errorf("MediaRecorder: %s", res.Error))
		return false
	}
	for _, c := range res.Chunks {
		data, err := base64.StdEncoding.DecodeString(c)
		if err != nil {
			r.fail(fmt.Errorf("decode chunk: %w", err))
			return false
		}
		select {
		case r.chunks <- data:
		case <-r.ctx.Done():
			return false
		}
	}
	return true
}

var _ ports.Recorder = (*Recorder)(nil)
