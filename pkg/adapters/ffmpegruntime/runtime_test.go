package ffmpegruntime

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"slices"
	"testing"
	"time"

	"github.com/user/vidshrink/pkg/adapters/ffmpeg"
	"github.com/user/vidshrink/pkg/ports"
	"github.com/user/vidshrink/pkg/surface"
)

func fullEncoders() map[string]bool {
	return map[string]bool{
		"libx264":    true,
		"libvpx":     true,
		"libvpx-vp9": true,
		"libopus":    true,
		"aac":        true,
	}
}

func TestRuntime_IsTypeSupported(t *testing.T) {
	rt := NewWithEncoders("ffmpeg", fullEncoders())

	tests := []struct {
		mime string
		want bool
	}{
		{"", true},
		{"video/webm", true},
		{"video/mp4", true},
		{"video/webm;codecs=vp9,opus", true},
		{"video/webm;codecs=vp8,opus", true},
		{`video/mp4;codecs="avc1.64001F,mp4a.40.2"`, true},
		{`video/mp4;codecs="avc1.42E01E"`, true},
		{"video/webm;codecs=av01", false},
		{"video/webm;codecs=avc1", false},
		{"video/mp4;codecs=vp8", false},
		{"video/webm;codecs=vp8,mp4a.40.2", false},
		{"video/ogg", false},
	}
	for _, tt := range tests {
		if got := rt.IsTypeSupported(tt.mime); got != tt.want {
			t.Errorf("IsTypeSupported(%q) = %v, want %v", tt.mime, got, tt.want)
		}
	}
}

func TestRuntime_MissingEncoders(t *testing.T) {
	rt := NewWithEncoders("ffmpeg", map[string]bool{"libvpx": true})

	if rt.IsTypeSupported("video/webm;codecs=vp9") {
		t.Error("vp9 should be refused without libvpx-vp9")
	}
	if rt.IsTypeSupported("video/webm;codecs=vp8,opus") {
		t.Error("opus should be refused without an opus encoder")
	}
	if !rt.IsTypeSupported("video/webm;codecs=vp8") {
		t.Error("vp8 should be supported")
	}

	_, err := rt.NewRecorder(surface.NewStream(16, 16, 10, 0), ports.RecorderOptions{MIMEType: "video/mp4"})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestRuntime_DefaultType(t *testing.T) {
	rt := NewWithEncoders("ffmpeg", map[string]bool{"libx264": true})

	rec, err := rt.NewRecorder(surface.NewStream(16, 16, 10, 0), ports.RecorderOptions{})
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	defer rec.Release()
	if got := rec.MIMEType(); got != `video/mp4;codecs="avc1.42E01E"` {
		t.Errorf("unexpected default type %q", got)
	}
}

func TestRecorder_Args(t *testing.T) {
	rt := NewWithEncoders("ffmpeg", fullEncoders())

	rec, err := rt.NewRecorder(surface.NewStream(640, 360, 24, 0), ports.RecorderOptions{
		MIMEType:           `video/mp4;codecs="avc1.4D401E,mp4a.40.2"`,
		VideoBitsPerSecond: 1_200_000,
		AudioPath:          "/tmp/source.mp4",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Release()

	args := rec.(*Recorder).Args()
	for _, want := range [][]string{
		{"-s", "640x360"},
		{"-r", "24.000"},
		{"-c:v", "libx264"},
		{"-profile:v", "main"},
		{"-b:v", "1200000"},
		{"-c:a", "aac"},
		{"-i", "/tmp/source.mp4"},
		{"-f", "mp4"},
	} {
		if !hasPair(args, want[0], want[1]) {
			t.Errorf("missing %v in %v", want, args)
		}
	}
	if !slices.Contains(args, "frag_keyframe+empty_moov+default_base_moof") {
		t.Error("mp4 output must be fragmented for streaming")
	}
}

func hasPair(args []string, key, value string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == key && args[i+1] == value {
			return true
		}
	}
	return false
}

func TestRecorder_VideoOnlyDropsAudio(t *testing.T) {
	rt := NewWithEncoders("ffmpeg", fullEncoders())

	rec, err := rt.NewRecorder(surface.NewStream(320, 240, 15, 0), ports.RecorderOptions{
		MIMEType:  "video/webm;codecs=vp8",
		AudioPath: "/tmp/source.mp4",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Release()

	args := rec.(*Recorder).Args()
	if slices.Contains(args, "/tmp/source.mp4") {
		t.Error("video-only target must not read the audio source")
	}
	if !slices.Contains(args, "-an") {
		t.Error("expected -an for video-only target")
	}
}

func TestAvcProfile(t *testing.T) {
	tests := map[string]string{
		"avc1.42E01E": "baseline",
		"avc1.4D401F": "main",
		"avc1.64001F": "high",
		"avc1":        "baseline",
	}
	for codec, want := range tests {
		if got := avcProfile(codec); got != want {
			t.Errorf("avcProfile(%q) = %q, want %q", codec, got, want)
		}
	}
}

func TestRecorder_ReleaseBeforeStart(t *testing.T) {
	rt := NewWithEncoders("ffmpeg", fullEncoders())
	rec, err := rt.NewRecorder(surface.NewStream(16, 16, 10, 0), ports.RecorderOptions{MIMEType: "video/webm"})
	if err != nil {
		t.Fatal(err)
	}
	rec.Release()
	rec.Release()
	if err := rec.Stop(); err != nil {
		t.Errorf("Stop after Release: %v", err)
	}
}

func TestRecorder_EncodesWithFFmpeg(t *testing.T) {
	if !ffmpeg.Available() {
		t.Skip("ffmpeg not available")
	}

	rt, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if !rt.IsTypeSupported("video/webm;codecs=vp8") {
		t.Skip("ffmpeg build lacks libvpx")
	}

	stream := surface.NewStream(64, 48, 10, 2)
	rec, err := rt.NewRecorder(stream, ports.RecorderOptions{MIMEType: "video/webm;codecs=vp8"})
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Release()
	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}

	out := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		for c := range rec.Chunks() {
			buf.Write(c)
		}
		out <- buf.Bytes()
	}()

	for i := 0; i < 10; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 64, 48))
		img.Set(i, i, color.White)
		if err := stream.Push(context.Background(), ports.CapturedFrame{Image: img, Timestamp: time.Duration(i) * 100 * time.Millisecond}); err != nil {
			t.Fatal(err)
		}
	}
	stream.End()

	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	data := <-out
	if len(data) < 4 || !bytes.Equal(data[:4], []byte{0x1a, 0x45, 0xdf, 0xa3}) {
		t.Errorf("expected EBML header, got % x", data[:min(4, len(data))])
	}
}
