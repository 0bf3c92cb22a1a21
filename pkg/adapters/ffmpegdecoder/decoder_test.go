package ffmpegdecoder

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/vidshrink/pkg/adapters/ffmpeg"
	"github.com/user/vidshrink/pkg/adapters/osfilesystem"
	"github.com/user/vidshrink/pkg/mocks"
	"github.com/user/vidshrink/pkg/ports"
)

const probeJSON = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "r_frame_rate": "30/1", "avg_frame_rate": "30000/1001", "duration": "119.9"},
    {"codec_type": "audio", "codec_name": "aac"}
  ],
  "format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "120.000000"}
}`

func TestParseProbe(t *testing.T) {
	info, err := parseProbe([]byte(probeJSON))
	if err != nil {
		t.Fatalf("parseProbe failed: %v", err)
	}
	if info.Width != 1920 || info.Height != 1080 {
		t.Errorf("expected 1920x1080, got %dx%d", info.Width, info.Height)
	}
	if info.Duration != 120*time.Second {
		t.Errorf("expected 120s, got %v", info.Duration)
	}
	if info.FrameRate < 29.96 || info.FrameRate > 29.98 {
		t.Errorf("expected 29.97fps, got %.3f", info.FrameRate)
	}
	if !info.HasAudio {
		t.Error("expected audio")
	}
	if info.Container != "mp4" || info.VideoCodec != "h264" {
		t.Errorf("unexpected container/codec %q/%q", info.Container, info.VideoCodec)
	}
}

func TestParseProbe_StreamDurationFallback(t *testing.T) {
	info, err := parseProbe([]byte(`{"streams":[{"codec_type":"video","width":2,"height":2,"duration":"1.5"}],"format":{"format_name":"matroska,webm"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if info.Duration != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", info.Duration)
	}
	if info.Container != "webm" {
		t.Errorf("expected webm, got %q", info.Container)
	}
}

func TestParseProbe_NoVideo(t *testing.T) {
	_, err := parseProbe([]byte(`{"streams":[{"codec_type":"audio"}],"format":{}}`))
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestParseRate(t *testing.T) {
	tests := map[string]float64{
		"30/1":  30,
		"25":    25,
		"0/0":   0,
		"":      0,
		"24/0":  0,
		"abc/1": 0,
	}
	for in, want := range tests {
		if got := parseRate(in); got != want {
			t.Errorf("parseRate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSourceExt(t *testing.T) {
	tests := []struct {
		src  ports.MediaSource
		want string
	}{
		{ports.MediaSource{Filename: "clip.mov"}, ".mov"},
		{ports.MediaSource{MIMEType: "video/webm;codecs=vp9"}, ".webm"},
		{ports.MediaSource{MIMEType: "video/mp4"}, ".mp4"},
		{ports.MediaSource{}, ""},
	}
	for _, tt := range tests {
		if got := sourceExt(tt.src); got != tt.want {
			t.Errorf("sourceExt(%+v) = %q, want %q", tt.src, got, tt.want)
		}
	}
}

// makeClip renders a short test pattern with ffmpeg.
func makeClip(t *testing.T) []byte {
	t.Helper()
	if !ffmpeg.Available() {
		t.Skip("ffmpeg not available")
	}
	bin, _ := ffmpeg.FindFFmpeg()
	out := filepath.Join(t.TempDir(), "clip.mp4")
	cmd := exec.Command(bin, "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=160x90:rate=10:duration=2",
		"-pix_fmt", "yuv420p", out)
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot create test clip: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestDecoder_OpenAndSeek(t *testing.T) {
	data := makeClip(t)

	dec, err := New(osfilesystem.NewWithTempDir(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	session, err := dec.Open(context.Background(), ports.MediaSource{Data: data, Filename: "clip.mp4"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer session.Close()

	info := session.Info()
	if info.Width != 160 || info.Height != 90 {
		t.Errorf("expected 160x90, got %dx%d", info.Width, info.Height)
	}

	for _, at := range []time.Duration{0, 300 * time.Millisecond, time.Second, 1900 * time.Millisecond, 200 * time.Millisecond} {
		if err := session.Seek(context.Background(), at); err != nil {
			t.Fatalf("Seek(%v) failed: %v", at, err)
		}
		img, err := session.Frame()
		if err != nil {
			t.Fatal(err)
		}
		if b := img.Bounds(); b.Dx() != 160 || b.Dy() != 90 {
			t.Errorf("unexpected frame size %v", b)
		}
	}
}

func TestDecoder_RejectsGarbage(t *testing.T) {
	if !ffmpeg.Available() {
		t.Skip("ffmpeg not available")
	}
	fs := mocks.NewFileSystem()
	dec, err := New(fs)
	if err != nil {
		t.Fatal(err)
	}
	_, err = dec.Open(context.Background(), ports.MediaSource{Data: []byte("not a video"), Filename: "clip.mp4"})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if leaked := fs.LeakedTempFiles(); len(leaked) != 0 {
		t.Errorf("temporary source copies left behind: %v", leaked)
	}
}

func TestDecoder_TempFileFailure(t *testing.T) {
	fs := mocks.NewFileSystem()
	fs.TempFileFunc = func(string, []byte) (string, error) {
		return "", errors.New("disk full")
	}
	dec := &Decoder{ffmpegPath: "ffmpeg", ffprobePath: "ffprobe", fs: fs}

	_, err := dec.Open(context.Background(), ports.MediaSource{Data: []byte{1}, Filename: "clip.mp4"})
	if err == nil || errors.Is(err, ErrUnsupported) {
		t.Errorf("expected a materialize error, got %v", err)
	}
}
