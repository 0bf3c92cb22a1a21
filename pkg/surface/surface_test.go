package surface

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/user/vidshrink/pkg/adapters/ggrenderer"
	"github.com/user/vidshrink/pkg/ports"
)

func TestStream_PushAndEnd(t *testing.T) {
	s := NewStream(4, 2, 10, 2)

	if s.Width() != 4 || s.Height() != 2 || s.FrameRate() != 10 {
		t.Errorf("unexpected geometry %dx%d @ %f", s.Width(), s.Height(), s.FrameRate())
	}

	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for i := 0; i < 2; i++ {
		if err := s.Push(context.Background(), ports.CapturedFrame{Image: img, Timestamp: time.Duration(i)}); err != nil {
			t.Fatalf("Push %d failed: %v", i, err)
		}
	}
	s.End()
	s.End()

	if !s.Ended() {
		t.Error("expected stream to be ended")
	}

	var got []time.Duration
	for f := range s.Frames() {
		got = append(got, f.Timestamp)
	}
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("expected buffered frames in order, got %v", got)
	}

	if err := s.Push(context.Background(), ports.CapturedFrame{}); !errors.Is(err, ErrStreamEnded) {
		t.Errorf("expected ErrStreamEnded after End, got %v", err)
	}
}

func TestStream_PushHonorsContext(t *testing.T) {
	s := NewStream(1, 1, 1, 0)
	defer s.End()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := s.Push(ctx, ports.CapturedFrame{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded with no consumer, got %v", err)
	}
}

func TestStream_EndUnblocksPush(t *testing.T) {
	s := NewStream(1, 1, 1, 0)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Push(context.Background(), ports.CapturedFrame{})
	}()

	time.Sleep(10 * time.Millisecond)
	s.End()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrStreamEnded) {
			t.Errorf("expected ErrStreamEnded, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Push stayed blocked after End")
	}
}

func TestSurface_DrawCommit(t *testing.T) {
	surf := New(ggrenderer.New(), 8, 6, 5)
	defer surf.Release()

	src := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for p := 0; p < len(src.Pix); p += 4 {
		src.Pix[p] = 255
		src.Pix[p+3] = 255
	}

	done := make(chan ports.CapturedFrame, 1)
	go func() {
		done <- <-surf.Stream().Frames()
	}()

	surf.Draw(src)
	img, err := surf.Commit(context.Background(), 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if surf.Committed() != 1 {
		t.Errorf("expected 1 committed frame, got %d", surf.Committed())
	}

	frame := <-done
	if frame.Timestamp != 200*time.Millisecond {
		t.Errorf("expected 200ms timestamp, got %v", frame.Timestamp)
	}
	if b := frame.Image.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
		t.Errorf("expected 8x6 frame, got %dx%d", b.Dx(), b.Dy())
	}
	r, _, _, _ := img.At(4, 3).RGBA()
	if r>>8 < 200 {
		t.Errorf("expected scaled red pixel, got %v", img.At(4, 3))
	}
}

func TestSurface_ReleaseIsIdempotent(t *testing.T) {
	surf := New(ggrenderer.New(), 2, 2, 1)
	surf.End()
	surf.Release()
	surf.Release()

	if !surf.stream.Ended() {
		t.Error("expected stream to be ended after Release")
	}
}
