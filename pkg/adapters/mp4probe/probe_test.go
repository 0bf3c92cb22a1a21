package mp4probe

import (
	"bytes"
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/user/vidshrink/pkg/adapters/mjpegruntime"
	"github.com/user/vidshrink/pkg/ports"
	"github.com/user/vidshrink/pkg/surface"
)

func recordClip(t *testing.T, frames int, fps float64) []byte {
	t.Helper()

	stream := surface.NewStream(64, 48, fps, frames)
	rec, err := mjpegruntime.New().NewRecorder(stream, ports.RecorderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Release()

	for i := 0; i < frames; i++ {
		ts := time.Duration(float64(i) / fps * float64(time.Second))
		if err := stream.Push(context.Background(), ports.CapturedFrame{Image: image.NewRGBA(image.Rect(0, 0, 64, 48)), Timestamp: ts}); err != nil {
			t.Fatal(err)
		}
	}
	stream.End()

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	for c := range rec.Chunks() {
		buf.Write(c)
	}
	if err := rec.Err(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestProbe_MJPEGClip(t *testing.T) {
	data := recordClip(t, 20, 10)

	info, err := Probe(data)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if info.Width != 64 || info.Height != 48 {
		t.Errorf("expected 64x48, got %dx%d", info.Width, info.Height)
	}
	if info.Duration != 2*time.Second {
		t.Errorf("expected 2s, got %v", info.Duration)
	}
	if info.FrameRate < 9.9 || info.FrameRate > 10.1 {
		t.Errorf("expected 10fps, got %.2f", info.FrameRate)
	}
	if info.VideoCodec != "jpeg" || info.Container != "mp4" {
		t.Errorf("unexpected codec/container %q/%q", info.VideoCodec, info.Container)
	}
	if info.HasAudio {
		t.Error("expected no audio track")
	}
}

func TestProbe_NotMP4(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("short"), []byte("\x1aE\xdf\xa3webm-ish header")} {
		if _, err := Probe(data); !errors.Is(err, ErrNotMP4) {
			t.Errorf("Probe(%q): expected ErrNotMP4, got %v", data, err)
		}
	}
}

func TestIsMP4(t *testing.T) {
	if !IsMP4([]byte{0, 0, 0, 16, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}) {
		t.Error("expected ftyp header to be detected")
	}
	if IsMP4([]byte{0, 0, 0, 16, 'w', 'e', 'b', 'm'}) {
		t.Error("unexpected detection")
	}
}
