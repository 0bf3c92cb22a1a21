package smartruntime

import (
	"context"
	"errors"
	"testing"

	"github.com/user/vidshrink/pkg/adapters/mjpegruntime"
	"github.com/user/vidshrink/pkg/mocks"
	"github.com/user/vidshrink/pkg/ports"
	"github.com/user/vidshrink/pkg/surface"
)

func TestChain_DelegatesToFirstSupporting(t *testing.T) {
	webm := mocks.NewEncodingRuntime("video/webm;codecs=vp9")
	mp4 := mocks.NewEncodingRuntime("video/mp4")
	chain := NewChain(webm, mp4)

	if !chain.IsTypeSupported("video/mp4") || !chain.IsTypeSupported("video/webm;codecs=vp9") {
		t.Error("expected both types supported")
	}
	if chain.IsTypeSupported("video/ogg") {
		t.Error("unexpected support for ogg")
	}

	rec, err := chain.NewRecorder(surface.NewStream(8, 8, 10, 0), ports.RecorderOptions{MIMEType: "video/mp4"})
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	rec.Release()

	if webm.RecorderCount() != 0 || mp4.RecorderCount() != 1 {
		t.Errorf("expected recorder from second runtime, got %d/%d", webm.RecorderCount(), mp4.RecorderCount())
	}
}

func TestChain_Refuses(t *testing.T) {
	chain := NewChain(mocks.NewEncodingRuntime("video/webm"))
	_, err := chain.NewRecorder(surface.NewStream(8, 8, 10, 0), ports.RecorderOptions{MIMEType: "video/mp4"})
	if !errors.Is(err, ErrNoRuntimeAvailable) {
		t.Errorf("expected ErrNoRuntimeAvailable, got %v", err)
	}
}

func TestChain_Name(t *testing.T) {
	chain := NewChain(mocks.NewEncodingRuntime(), mjpegruntime.New())
	if got := chain.Name(); got != "mock+mjpeg" {
		t.Errorf("unexpected name %q", got)
	}
}

func TestNew_MJPEG(t *testing.T) {
	rt, info, err := New(context.Background(), BackendMJPEG, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if rt.Name() != mjpegruntime.Name {
		t.Errorf("expected mjpeg runtime, got %s", rt.Name())
	}
	if len(info.Backends) != 1 || info.Backends[0] != BackendMJPEG || info.FallbackUsed {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestNew_AutoAlwaysHasMJPEG(t *testing.T) {
	rt, info, err := New(context.Background(), BackendAuto, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if len(info.Backends) == 0 || info.Backends[len(info.Backends)-1] != BackendMJPEG {
		t.Errorf("mjpeg must be the last resort, got %v", info.Backends)
	}
	if !rt.IsTypeSupported("video/mp4") {
		t.Error("auto runtime must record plain mp4")
	}
}

func TestNew_ExplicitWithoutFallback(t *testing.T) {
	_, _, err := New(context.Background(), BackendChrome, Options{ChromePath: "/nonexistent/chrome"})
	if !errors.Is(err, ErrNoRuntimeAvailable) {
		t.Errorf("expected ErrNoRuntimeAvailable, got %v", err)
	}
}

func TestParseBackend(t *testing.T) {
	for in, want := range map[string]Backend{"": BackendAuto, "AUTO": BackendAuto, "ffmpeg": BackendFFmpeg, " mjpeg ": BackendMJPEG, "chrome": BackendChrome} {
		got, err := ParseBackend(in)
		if err != nil || got != want {
			t.Errorf("ParseBackend(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseBackend("gstreamer"); err == nil {
		t.Error("expected error for unknown backend")
	}
}
