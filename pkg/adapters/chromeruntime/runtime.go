// Package chromeruntime records capture streams with a headless browser's
// MediaRecorder, driven over the DevTools protocol. Frames are painted onto
// a canvas whose captureStream feeds the recorder, so the browser decides
// which container/codec pairs are available.
package chromeruntime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"

	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/ports"
)

// Name is the runtime name used in logs and reports.
const Name = "chrome"

// ErrUnsupportedType is returned by NewRecorder for refused types.
var ErrUnsupportedType = errors.New("chromeruntime: unsupported type")

// Options configures the browser.
type Options struct {
	ChromePath string
	Headless   bool

	// FrameQuality is the JPEG quality used to ship frames to the page.
	FrameQuality int
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{Headless: true, FrameQuality: 90}
}

// Runtime implements ports.EncodingRuntime with one shared browser process.
// Every recorder runs in its own tab.
type Runtime struct {
	opts Options

	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	mu        sync.Mutex
	supported map[string]bool
}

// Launch starts the browser.
func Launch(ctx context.Context, opts Options) (*Runtime, error) {
	chromePath, err := ResolveChromePath(opts.ChromePath)
	if err != nil {
		return nil, err
	}
	if opts.FrameQuality <= 0 || opts.FrameQuality > 100 {
		opts.FrameQuality = DefaultOptions().FrameQuality
	}

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.ExecPath(chromePath),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("no-zygote", true),
		// Keep timers and capture running in background tabs.
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
	}
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	}

	r := &Runtime{opts: opts, supported: make(map[string]bool)}
	r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	r.ctx, r.cancel = chromedp.NewContext(r.allocCtx)

	if err := chromedp.Run(r.ctx, chromedp.Navigate("about:blank")); err != nil {
		r.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return r, nil
}

// Name implements ports.EncodingRuntime.
func (r *Runtime) Name() string { return Name }

// IsTypeSupported asks MediaRecorder.isTypeSupported. Types with audio are
// refused because the canvas stream carries no audio track.
func (r *Runtime) IsTypeSupported(mimeType string) bool {
	if mimeType == "" {
		return true
	}
	if pipeline.ParseTarget(mimeType).HasAudio() {
		return false
	}

	r.mu.Lock()
	ok, cached := r.supported[mimeType]
	r.mu.Unlock()
	if cached {
		return ok
	}

	var res bool
	expr := fmt.Sprintf(`typeof MediaRecorder !== "undefined" && MediaRecorder.isTypeSupported(%q)`, mimeType)
	if err := chromedp.Run(r.ctx, chromedp.Evaluate(expr, &res)); err != nil {
		return false
	}

	r.mu.Lock()
	r.supported[mimeType] = res
	r.mu.Unlock()
	return res
}

// NewRecorder opens a tab for the recorder. The tab is set up in Start.
func (r *Runtime) NewRecorder(stream ports.CaptureStream, opts ports.RecorderOptions) (ports.Recorder, error) {
	if !r.IsTypeSupported(opts.MIMEType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, opts.MIMEType)
	}
	tabCtx, cancel := chromedp.NewContext(r.ctx)
	return newRecorder(tabCtx, cancel, stream, opts, r.opts.FrameQuality), nil
}

// Close shuts the browser down.
func (r *Runtime) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
	return nil
}

var _ ports.EncodingRuntime = (*Runtime)(nil)
