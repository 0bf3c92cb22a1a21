package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/vidshrink/pkg/ladder"
	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/ports"
)

func plan(t *testing.T, m pipeline.Method) pipeline.CompressionPlan {
	t.Helper()
	p, ok := ladder.Find(ladder.Default(), m)
	if !ok {
		t.Fatalf("no plan %s", m)
	}
	return p
}

func TestStage_Execute_Figures(t *testing.T) {
	stage := NewStage()
	src := pipeline.SourceMedia{Data: make([]byte, 3*BytesPerMB), MIMEType: "video/quicktime", Filename: "holiday.mov"}

	result, err := stage.Execute(context.Background(), pipeline.ReportInput{
		Source:     src,
		SourceInfo: ports.MediaInfo{Width: 1920, Height: 1080, HasAudio: true},
		Plan:       plan(t, pipeline.MethodBalanced),
		Target:     pipeline.ParseTarget("video/webm;codecs=vp8,opus"),
		OutputMIME: "video/webm;codecs=vp8,opus",
		Data:       make([]byte, 1234567),
		Elapsed:    1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.OriginalSizeMB != 3 {
		t.Errorf("expected 3 MB original, got %v", result.OriginalSizeMB)
	}
	if result.CompressionRatio != result.OriginalSizeMB/result.CompressedSizeMB {
		t.Errorf("ratio %v is not original/compressed", result.CompressionRatio)
	}
	if result.ProcessingTimeMs != 1500 {
		t.Errorf("expected 1500 ms, got %d", result.ProcessingTimeMs)
	}
	if result.File.Filename != "holiday.webm" {
		t.Errorf("unexpected filename %q", result.File.Filename)
	}
	if result.QualityScore != 3 || result.Method != pipeline.MethodBalanced {
		t.Errorf("unexpected method/score %s/%d", result.Method, result.QualityScore)
	}
	if !result.AudioPreserved {
		t.Error("expected audio to be preserved")
	}
	if !result.SmoothPlayback {
		t.Error("24 fps should be smooth")
	}
	if result.Width != 1536 || result.Height != 864 {
		t.Errorf("unexpected output size %dx%d", result.Width, result.Height)
	}
}

func TestStage_Execute_LargerOutputReportedTruthfully(t *testing.T) {
	stage := NewStage()
	result, err := stage.Execute(context.Background(), pipeline.ReportInput{
		Source: pipeline.SourceMedia{Data: make([]byte, 1000), Filename: "a.mp4"},
		Plan:   plan(t, pipeline.MethodSimpleFallback),
		Data:   make([]byte, 2000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CompressionRatio != 0.5 {
		t.Errorf("expected ratio 0.5, got %v", result.CompressionRatio)
	}
}

func TestStage_Execute_RuntimeDefaultUsesProducedType(t *testing.T) {
	stage := NewStage()
	result, err := stage.Execute(context.Background(), pipeline.ReportInput{
		Source:     pipeline.SourceMedia{Data: make([]byte, 1000), Filename: "clip"},
		SourceInfo: ports.MediaInfo{HasAudio: true},
		Plan:       plan(t, pipeline.MethodSimpleFallback),
		Target:     pipeline.EncodeTarget{},
		OutputMIME: "video/mp4",
		Data:       make([]byte, 10),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.File.Filename != "clip.mp4" || result.File.MIMEType != "video/mp4" {
		t.Errorf("unexpected file %q (%s)", result.File.Filename, result.File.MIMEType)
	}
	if result.AudioPreserved {
		t.Error("simple-fallback never preserves audio")
	}
	if result.SmoothPlayback {
		t.Error("15 fps with skip 3 is not smooth")
	}
}

func TestStage_Execute_Empty(t *testing.T) {
	_, err := NewStage().Execute(context.Background(), pipeline.ReportInput{
		Source: pipeline.SourceMedia{Data: []byte{1}},
	})
	if !errors.Is(err, pipeline.ErrEmptyOutput) {
		t.Fatalf("expected ErrEmptyOutput, got %v", err)
	}
}

func TestAudioPreserved(t *testing.T) {
	withAudio := pipeline.ParseTarget("video/webm;codecs=vp8,opus")
	videoOnly := pipeline.ParseTarget("video/webm;codecs=vp8")

	tests := []struct {
		name     string
		method   pipeline.Method
		target   pipeline.EncodeTarget
		hasAudio bool
		want     bool
	}{
		{"audio target, source audio", pipeline.MethodBalanced, withAudio, true, true},
		{"audio target, silent source", pipeline.MethodBalanced, withAudio, false, false},
		{"video-only target", pipeline.MethodAggressive, videoOnly, true, false},
		{"simple fallback", pipeline.MethodSimpleFallback, withAudio, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AudioPreserved(plan(t, tt.method), tt.target, tt.hasAudio); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
