package summarizer

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/user/vidshrink/pkg/pipeline"
)

func sampleSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Settings: Settings{
			Preset:     "default",
			Runtime:    "ffmpeg+mjpeg",
			Decoder:    "native",
			MinSavings: 0.05,
			Workers:    2,
		},
		Files: []FileSummary{
			{
				Input:            "/videos/clip.mp4",
				OriginalSize:     10 * 1024 * 1024,
				Output:           "out/clip.webm",
				OutputSize:       4 * 1024 * 1024,
				MIMEType:         "video/webm;codecs=vp8,opus",
				Method:           pipeline.MethodBalanced,
				QualityScore:     3,
				CompressionRatio: 2.5,
				Width:            1536,
				Height:           864,
				AudioPreserved:   true,
				SmoothPlayback:   true,
				ProcessingTimeMs: 4200,
				Thumbnail:        "image/jpeg",
				Attempts: []pipeline.AttemptReport{
					{Index: 1, Method: pipeline.MethodQualityPreserving, Target: "video/webm;codecs=vp9,opus",
						Outcome: pipeline.OutcomeNonImproving, Error: "non-improving", OutputBytes: 11 * 1024 * 1024,
						Elapsed: 1500 * time.Millisecond},
					{Index: 2, Method: pipeline.MethodBalanced, Target: "video/webm;codecs=vp8,opus",
						Outcome: pipeline.OutcomeSucceeded, OutputBytes: 4 * 1024 * 1024,
						Elapsed: 2700 * time.Millisecond},
				},
			},
			{
				Input:        "broken.mov",
				OriginalSize: 2048,
				Error:        "unreadable source | moov missing",
			},
		},
	}
}

func TestMarkdownFormatter_Format_Basic(t *testing.T) {
	formatter := NewMarkdownFormatter()

	result := formatter.Format(sampleSummary())

	checks := []string{
		"# Compression Summary",
		"2024-01-15T10:30:00Z",
		"ffmpeg+mjpeg", // Runtime
		"| Minimum Savings | 5% |",
		"1 / 2 compressed",
		"### clip.mp4",
		"10.00 MB", // Original
		"4.00 MB",  // Compressed
		"2.50x",
		"balanced (3)",
		"1536x864",
		"4200 ms",
		"image/jpeg",
	}

	for _, check := range checks {
		if !strings.Contains(result, check) {
			t.Errorf("expected output to contain %q", check)
		}
	}
}

func TestMarkdownFormatter_AttemptTrace(t *testing.T) {
	result := NewMarkdownFormatter().Format(sampleSummary())

	if !strings.Contains(result, "| 1 | quality-preserving | video/webm;codecs=vp9,opus | non-improving: non-improving | 11.00 MB | 1500 ms |") {
		t.Error("expected first attempt row")
	}
	if !strings.Contains(result, "| 2 | balanced | video/webm;codecs=vp8,opus | succeeded | 4.00 MB | 2700 ms |") {
		t.Error("expected second attempt row")
	}
}

func TestMarkdownFormatter_Failure(t *testing.T) {
	result := NewMarkdownFormatter().Format(sampleSummary())

	if !strings.Contains(result, "### broken.mov") {
		t.Error("expected failed file heading")
	}
	if !strings.Contains(result, "| Status | Failed |") {
		t.Error("expected failed status row")
	}
	if !strings.Contains(result, `unreadable source \| moov missing`) {
		t.Error("expected pipe in error to be escaped")
	}
}

func TestMarkdownFormatter_WithTranslator(t *testing.T) {
	translator := func(key string) string {
		translations := map[string]string{
			"Compression Summary": "圧縮サマリー",
			"Original Size":       "元のサイズ",
			"Failed":              "失敗",
		}
		if v, ok := translations[key]; ok {
			return v
		}
		return key
	}

	formatter := NewMarkdownFormatter(WithTranslator(translator))
	result := formatter.Format(sampleSummary())

	if !strings.Contains(result, "圧縮サマリー") {
		t.Error("expected translated 'Compression Summary'")
	}
	if !strings.Contains(result, "元のサイズ") {
		t.Error("expected translated 'Original Size'")
	}
	if !strings.Contains(result, "失敗") {
		t.Error("expected translated 'Failed'")
	}
}

func TestMarkdownFormatter_WithVersion(t *testing.T) {
	formatter := NewMarkdownFormatter(WithVersion("v1.2.0"))

	result := formatter.Format(&Summary{GeneratedAt: time.Now()})

	if !strings.Contains(result, "vidshrink v1.2.0") {
		t.Error("expected output to contain version 'v1.2.0'")
	}
}

func TestMarkdownFormatter_FromBuilder(t *testing.T) {
	summary := NewBuilder().
		WithFailure("a.mp4", 100, errors.New("all strategies failed"), nil).
		Build()

	result := NewMarkdownFormatter().Format(summary)

	if !strings.Contains(result, "0 / 1 compressed") {
		t.Error("expected zero successes")
	}
	if !strings.Contains(result, "all strategies failed") {
		t.Error("expected error message")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1024 * 1024, "1.00 MB"},
		{1024 * 1024 * 1024, "1.00 GB"},
		{1536 * 1024 * 1024, "1.50 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := formatBytes(tt.bytes)
			if got != tt.want {
				t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}
