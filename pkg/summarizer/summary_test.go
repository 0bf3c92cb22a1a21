package summarizer

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/user/vidshrink/pkg/mocks"
	"github.com/user/vidshrink/pkg/pipeline"
)

func TestNewSummary(t *testing.T) {
	before := time.Now()
	summary := NewSummary()
	after := time.Now()

	if summary.GeneratedAt.Before(before) || summary.GeneratedAt.After(after) {
		t.Errorf("GeneratedAt should be between %v and %v, got %v",
			before, after, summary.GeneratedAt)
	}
}

func TestBuilder_WithSettings(t *testing.T) {
	summary := NewBuilder().
		WithSettings(Settings{Preset: "fast", Runtime: "mjpeg", MinSavings: 0.1}).
		Build()

	if summary.Settings.Preset != "fast" {
		t.Errorf("expected Preset 'fast', got '%s'", summary.Settings.Preset)
	}
	if summary.Settings.MinSavings != 0.1 {
		t.Errorf("expected MinSavings 0.1, got %f", summary.Settings.MinSavings)
	}
}

func TestBuilder_WithResult(t *testing.T) {
	result := pipeline.CompressionResult{
		File: pipeline.OutputFile{
			Data:     make([]byte, 500),
			Filename: "clip.mp4",
			MIMEType: "video/mp4",
		},
		Method:           pipeline.MethodSimpleFallback,
		QualityScore:     1,
		CompressionRatio: 2,
		Width:            320,
		Height:           180,
		Thumbnail:        &pipeline.Thumbnail{MIMEType: "image/webp"},
		Attempts:         []pipeline.AttemptReport{{Index: 1}, {Index: 2}},
	}

	summary := NewBuilder().
		WithResult("in/clip.mov", "out/clip.mp4", 1000, result).
		Build()

	if len(summary.Files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(summary.Files))
	}
	f := summary.Files[0]
	if !f.Succeeded() {
		t.Error("expected file to be marked succeeded")
	}
	if f.OutputSize != 500 || f.OriginalSize != 1000 {
		t.Errorf("unexpected sizes %d / %d", f.OutputSize, f.OriginalSize)
	}
	if f.Method != pipeline.MethodSimpleFallback || f.QualityScore != 1 {
		t.Errorf("unexpected method %s (%d)", f.Method, f.QualityScore)
	}
	if f.Thumbnail != "image/webp" {
		t.Errorf("expected thumbnail type, got %q", f.Thumbnail)
	}
	if len(f.Attempts) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(f.Attempts))
	}
}

func TestBuilder_WithResultWithoutPayload(t *testing.T) {
	result := pipeline.CompressionResult{
		File:             pipeline.OutputFile{Filename: "clip.webm", MIMEType: "video/webm"},
		CompressedSizeMB: float64(123457) / (1024 * 1024),
		Method:           pipeline.MethodBalanced,
	}

	f := NewBuilder().WithResult("clip.mov", "out/clip.webm", 999999, result).Build().Files[0]
	if f.OutputSize != 123457 {
		t.Errorf("expected size from the MB figure, got %d", f.OutputSize)
	}
}

func TestBuilder_WithFailure(t *testing.T) {
	summary := NewBuilder().
		WithFailure("a.mp4", 10, errors.New("boom"), nil).
		WithFailure("b.mp4", 20, nil, nil).
		Build()

	if summary.Files[0].Error != "boom" {
		t.Errorf("expected error 'boom', got %q", summary.Files[0].Error)
	}
	if summary.Files[1].Error == "" || summary.Files[1].Succeeded() {
		t.Error("nil error should still mark the file failed")
	}
}

func TestWriter_Write(t *testing.T) {
	fs := mocks.NewFileSystem()
	formatter := FormatFunc(func(s *Summary) string {
		return "files: " + strings.Repeat("x", len(s.Files))
	})

	summary := NewBuilder().WithFailure("a.mp4", 1, nil, nil).Build()
	if err := NewWriter(formatter, fs).Write("reports/summary.md", summary); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, ok := fs.GetFile("reports/summary.md")
	if !ok {
		t.Fatal("expected summary file to be written")
	}
	if string(data) != "files: x" {
		t.Errorf("unexpected content %q", data)
	}
}
