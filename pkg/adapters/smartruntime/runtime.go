// Package smartruntime selects the best available encoding runtime and
// chains runtimes so a type one backend refuses can still be recorded by
// another.
package smartruntime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ideamans/go-l10n"

	"github.com/user/vidshrink/pkg/adapters/chromeruntime"
	"github.com/user/vidshrink/pkg/adapters/ffmpeg"
	"github.com/user/vidshrink/pkg/adapters/ffmpegruntime"
	"github.com/user/vidshrink/pkg/adapters/mjpegruntime"
	"github.com/user/vidshrink/pkg/ports"
)

// Backend names an encoding runtime implementation.
type Backend string

const (
	// BackendAuto chains every available backend: chrome (if enabled),
	// ffmpeg, then mjpeg.
	BackendAuto Backend = "auto"
	// BackendChrome records with a headless browser's MediaRecorder.
	BackendChrome Backend = "chrome"
	// BackendFFmpeg records with an external ffmpeg process.
	BackendFFmpeg Backend = "ffmpeg"
	// BackendMJPEG records Motion-JPEG MP4 in pure Go.
	BackendMJPEG Backend = "mjpeg"
)

// ParseBackend maps a flag value to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendChrome, BackendFFmpeg, BackendMJPEG:
		return b, nil
	}
	return "", fmt.Errorf("unknown runtime backend %q", s)
}

// Info describes the selected runtime.
type Info struct {
	// Backends lists the chained backends in priority order.
	Backends []Backend
	// Requested is the backend that was asked for.
	Requested Backend
	// FallbackUsed indicates the requested backend was unavailable.
	FallbackUsed bool
}

// Options configures selection.
type Options struct {
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string
	// ChromePath is an optional custom path to the browser.
	ChromePath string
	// UseBrowser enables the chrome backend in auto mode.
	UseBrowser bool
	// AllowFallback lets an unavailable explicit backend fall back to auto.
	AllowFallback bool
	// Logger is used to log fallback warnings.
	Logger ports.Logger
}

// ErrNoRuntimeAvailable is returned when the requested backend cannot start.
var ErrNoRuntimeAvailable = errors.New("smartruntime: no runtime available")

// New creates the runtime for preferred. The result implements io.Closer
// when it holds external resources.
func New(ctx context.Context, preferred Backend, opts Options) (ports.EncodingRuntime, Info, error) {
	if opts.FFmpegPath != "" {
		ffmpeg.SetPath(ffmpeg.ToolFFmpeg, opts.FFmpegPath)
	}
	info := Info{Requested: preferred}

	if preferred != BackendAuto && preferred != "" {
		rt, err := open(ctx, preferred, opts)
		if err == nil {
			info.Backends = []Backend{preferred}
			return rt, info, nil
		}
		if !opts.AllowFallback {
			return nil, Info{}, fmt.Errorf("%w: %s: %v", ErrNoRuntimeAvailable, preferred, err)
		}
		if opts.Logger != nil {
			opts.Logger.Warn(l10n.F("Runtime %s unavailable: %s", preferred, err))
			opts.Logger.Warn(l10n.F("Falling back to %s runtime", BackendAuto))
		}
		info.FallbackUsed = true
	}

	candidates := []Backend{BackendFFmpeg, BackendMJPEG}
	if opts.UseBrowser {
		candidates = append([]Backend{BackendChrome}, candidates...)
	}

	var runtimes []ports.EncodingRuntime
	for _, b := range candidates {
		rt, err := open(ctx, b, opts)
		if err != nil {
			if opts.Logger != nil {
				opts.Logger.Debug(l10n.F("Runtime %s unavailable: %s", b, err))
			}
			continue
		}
		runtimes = append(runtimes, rt)
		info.Backends = append(info.Backends, b)
	}
	if len(runtimes) == 1 {
		return runtimes[0], info, nil
	}
	return NewChain(runtimes...), info, nil
}

func open(ctx context.Context, b Backend, opts Options) (ports.EncodingRuntime, error) {
	switch b {
	case BackendChrome:
		o := chromeruntime.DefaultOptions()
		o.ChromePath = opts.ChromePath
		return chromeruntime.Launch(ctx, o)
	case BackendFFmpeg:
		rt, err := ffmpegruntime.New()
		if err != nil {
			return nil, err
		}
		if err := rt.ProbeError(); err != nil {
			return nil, err
		}
		return rt, nil
	case BackendMJPEG:
		return mjpegruntime.New(), nil
	}
	return nil, fmt.Errorf("unknown backend %q", b)
}

// Chain delegates every type to the first runtime that supports it.
type Chain struct {
	runtimes []ports.EncodingRuntime
}

// NewChain creates a chain in priority order.
func NewChain(runtimes ...ports.EncodingRuntime) *Chain {
	return &Chain{runtimes: runtimes}
}

// Name lists the chained runtimes, e.g. "ffmpeg+mjpeg".
func (c *Chain) Name() string {
	names := make([]string, len(c.runtimes))
	for i, rt := range c.runtimes {
		names[i] = rt.Name()
	}
	return strings.Join(names, "+")
}

// IsTypeSupported reports whether any chained runtime supports the type.
func (c *Chain) IsTypeSupported(mimeType string) bool {
	return c.pick(mimeType) != nil
}

// NewRecorder delegates to the first runtime supporting opts.MIMEType.
func (c *Chain) NewRecorder(stream ports.CaptureStream, opts ports.RecorderOptions) (ports.Recorder, error) {
	rt := c.pick(opts.MIMEType)
	if rt == nil {
		return nil, fmt.Errorf("%w: no chained runtime supports %q", ErrNoRuntimeAvailable, opts.MIMEType)
	}
	return rt.NewRecorder(stream, opts)
}

func (c *Chain) pick(mimeType string) ports.EncodingRuntime {
	for _, rt := range c.runtimes {
		if rt.IsTypeSupported(mimeType) {
			return rt
		}
	}
	return nil
}

// Close closes every chained runtime that holds resources.
func (c *Chain) Close() error {
	var errs []error
	for _, rt := range c.runtimes {
		if closer, ok := rt.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

var _ ports.EncodingRuntime = (*Chain)(nil)
