package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/user/vidshrink/pkg/adapters/logger"
	"github.com/user/vidshrink/pkg/mocks"
	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	runtime  *mocks.EncodingRuntime
	decoder  *mocks.MediaDecoder
	renderer *mocks.Renderer
	sink     *mocks.DebugSink
	metrics  *mocks.Metrics
	orch     *Orchestrator
}

func newFixture(info ports.MediaInfo, runtime *mocks.EncodingRuntime) *fixture {
	f := &fixture{
		runtime:  runtime,
		decoder:  mocks.NewMediaDecoder(info),
		renderer: &mocks.Renderer{},
		sink:     mocks.NewDebugSink(true),
		metrics:  &mocks.Metrics{},
	}
	f.orch = NewDefault(f.runtime, f.decoder, f.renderer, f.sink, f.metrics, logger.NewNoop())
	return f
}

func smallInfo() ports.MediaInfo {
	return ports.MediaInfo{Width: 640, Height: 480, Duration: 2 * time.Second, FrameRate: 30, HasAudio: true}
}

func source(size int) pipeline.SourceMedia {
	return pipeline.SourceMedia{Data: make([]byte, size), MIMEType: "video/mp4", Filename: "clip.mp4"}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SeekTimeout = time.Second
	cfg.AttemptTimeout = 30 * time.Second
	return cfg
}

func outcomes(attempts []pipeline.AttemptReport) []string {
	out := make([]string, len(attempts))
	for i, a := range attempts {
		out[i] = a.Outcome
	}
	return out
}

func assertTornDown(t *testing.T, f *fixture) {
	t.Helper()
	if !f.runtime.AllReleased() {
		t.Error("a recorder was not released")
	}
	if !f.decoder.AllClosed() {
		t.Error("a decode session was not closed")
	}
}

func TestRun_FirstRungSucceeds(t *testing.T) {
	f := newFixture(smallInfo(), mocks.NewEncodingRuntime())

	result, err := f.orch.Run(context.Background(), source(1<<20), testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Method != pipeline.MethodQualityPreserving {
		t.Errorf("expected quality-preserving, got %s", result.Method)
	}
	if result.QualityScore != 4 {
		t.Errorf("expected score 4, got %d", result.QualityScore)
	}
	if result.File.MIMEType != "video/webm;codecs=vp9,opus" {
		t.Errorf("unexpected MIME type %q", result.File.MIMEType)
	}
	if result.File.Filename != "clip.webm" {
		t.Errorf("unexpected filename %q", result.File.Filename)
	}
	if !result.AudioPreserved {
		t.Error("expected audio to be preserved")
	}
	if result.Thumbnail == nil {
		t.Error("expected a thumbnail")
	}
	if len(result.Attempts) != 1 || result.Attempts[0].Outcome != pipeline.OutcomeSucceeded {
		t.Errorf("unexpected attempts %v", outcomes(result.Attempts))
	}
	// 2 s at 30 fps, skip 1.
	if got := f.runtime.Recorders[0].FrameCount(); got != 60 {
		t.Errorf("expected 60 frames recorded, got %d", got)
	}
	if len(f.sink.GetAttemptsJSON()) == 0 {
		t.Error("expected attempts to be written to the debug sink")
	}
	assertTornDown(t, f)
}

// A 50 MB 1080p source where the first rung barely shrinks the file.
func TestRun_ScenarioA_BalancedAfterNonImproving(t *testing.T) {
	rt := mocks.NewEncodingRuntime()
	rt.ChunkFrames = 100
	rt.Size = func(mimeType string, w, h, frames int) int {
		if strings.Contains(mimeType, "vp9") {
			return 49 << 20
		}
		return 10 << 20
	}
	info := ports.MediaInfo{Width: 1920, Height: 1080, Duration: 120 * time.Second, FrameRate: 60, HasAudio: true}
	f := newFixture(info, rt)

	result, err := f.orch.Run(context.Background(), source(50<<20), testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Method != pipeline.MethodBalanced {
		t.Fatalf("expected balanced, got %s", result.Method)
	}
	if result.QualityScore != 3 {
		t.Errorf("expected score 3, got %d", result.QualityScore)
	}
	if result.CompressionRatio != 5 {
		t.Errorf("expected ratio 5, got %v", result.CompressionRatio)
	}
	if !result.AudioPreserved {
		t.Error("expected audio to be preserved")
	}
	if result.Width != 1536 || result.Height != 864 {
		t.Errorf("unexpected output size %dx%d", result.Width, result.Height)
	}
	want := []string{pipeline.OutcomeNonImproving, pipeline.OutcomeSucceeded}
	if got := outcomes(result.Attempts); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected outcomes %v, got %v", want, got)
	}
	// 120 s at 24 fps.
	if got := f.runtime.Recorders[1].FrameCount(); got != 2880 {
		t.Errorf("expected 2880 frames, got %d", got)
	}
	assertTornDown(t, f)
}

// A runtime that only knows plain WebM ends on the last rung without audio.
func TestRun_ScenarioB_BasicRuntime(t *testing.T) {
	rt := mocks.NewEncodingRuntime("video/webm")
	f := newFixture(smallInfo(), rt)

	result, err := f.orch.Run(context.Background(), source(1<<20), testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Method != pipeline.MethodSimpleFallback {
		t.Fatalf("expected simple-fallback, got %s", result.Method)
	}
	if result.QualityScore != 1 {
		t.Errorf("expected score 1, got %d", result.QualityScore)
	}
	if result.AudioPreserved {
		t.Error("audio must not be preserved")
	}
	if result.File.MIMEType != "video/webm" {
		t.Errorf("unexpected MIME type %q", result.File.MIMEType)
	}
	want := []string{
		pipeline.OutcomeUnsupported,
		pipeline.OutcomeUnsupported,
		pipeline.OutcomeUnsupported,
		pipeline.OutcomeSucceeded,
	}
	if got := outcomes(result.Attempts); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected outcomes %v, got %v", want, got)
	}
	if f.runtime.RecorderCount() != 1 {
		t.Errorf("expected 1 recorder, got %d", f.runtime.RecorderCount())
	}
	// 2 s at 15 fps with skip 3 draws 10 frames.
	if got := f.runtime.Recorders[0].FrameCount(); got != 10 {
		t.Errorf("expected 10 frames, got %d", got)
	}
	assertTornDown(t, f)
}

func TestRun_ScenarioC_ZeroByteSource(t *testing.T) {
	f := newFixture(smallInfo(), mocks.NewEncodingRuntime())

	_, err := f.orch.Run(context.Background(), source(0), testConfig())
	if !errors.Is(err, pipeline.ErrUnreadableSource) {
		t.Fatalf("expected ErrUnreadableSource, got %v", err)
	}
	if errors.Is(err, pipeline.ErrAllStrategiesFailed) {
		t.Error("an unreadable source must not run the ladder")
	}
	if f.runtime.RecorderCount() != 0 || len(f.runtime.ProbeCalls) != 0 {
		t.Error("no attempt should have started")
	}
}

func TestRun_ScenarioC_UndecodableSource(t *testing.T) {
	f := newFixture(smallInfo(), mocks.NewEncodingRuntime())
	f.decoder.OpenFunc = func(context.Context, ports.MediaSource) (ports.DecodeSession, error) {
		return nil, errors.New("moov atom not found")
	}

	_, err := f.orch.Run(context.Background(), source(4096), testConfig())
	if !errors.Is(err, pipeline.ErrUnreadableSource) {
		t.Fatalf("expected ErrUnreadableSource, got %v", err)
	}
	if f.runtime.RecorderCount() != 0 {
		t.Error("no recorder should have been built")
	}
	if len(f.metrics.Results) != 1 || f.metrics.Results[0] {
		t.Errorf("expected one failed result metric, got %v", f.metrics.Results)
	}
}

func TestRun_EncoderFailureAdvancesLadder(t *testing.T) {
	rt := mocks.NewEncodingRuntime()
	rt.FailWith = map[string]error{"vp9": errors.New("hardware encoder lost")}
	f := newFixture(smallInfo(), rt)

	var transitions []string
	cfg := testConfig()
	cfg.OnTransition = func(from, to LadderState) {
		transitions = append(transitions, from.String()+">"+to.String())
	}

	result, err := f.orch.Run(context.Background(), source(1<<20), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != pipeline.MethodBalanced {
		t.Fatalf("expected balanced, got %s", result.Method)
	}
	if result.Attempts[0].Outcome != pipeline.OutcomeEncoderError {
		t.Errorf("expected encoder-error, got %s", result.Attempts[0].Outcome)
	}

	wantTransitions := []string{
		"not-started>attempting(0)",
		"attempting(0)>attempting(1)",
		"attempting(1)>succeeded(1)",
	}
	if strings.Join(transitions, " ") != strings.Join(wantTransitions, " ") {
		t.Errorf("unexpected transitions %v", transitions)
	}

	// Each attempt gets its own recorder and decode session.
	if f.runtime.RecorderCount() != 2 {
		t.Fatalf("expected 2 recorders, got %d", f.runtime.RecorderCount())
	}
	if f.runtime.Recorders[0] == f.runtime.Recorders[1] {
		t.Error("recorder reused across attempts")
	}
	// Pre-flight, two attempts and the thumbnail.
	if f.decoder.OpenCount() != 4 {
		t.Errorf("expected 4 decode sessions, got %d", f.decoder.OpenCount())
	}
	// One surface canvas per attempt plus the thumbnail canvas.
	if f.renderer.CanvasCount() != 3 {
		t.Errorf("expected 3 canvases, got %d", f.renderer.CanvasCount())
	}
	assertTornDown(t, f)
}

func TestRun_SeekTimeoutEverywhere(t *testing.T) {
	f := newFixture(smallInfo(), mocks.NewEncodingRuntime())
	f.decoder.SeekFunc = mocks.StallingSeek(500 * time.Millisecond)

	var last LadderState
	cfg := testConfig()
	cfg.SeekTimeout = 10 * time.Millisecond
	cfg.OnTransition = func(_, to LadderState) { last = to }

	result, err := f.orch.Run(context.Background(), source(1<<20), cfg)
	if !errors.Is(err, pipeline.ErrAllStrategiesFailed) {
		t.Fatalf("expected ErrAllStrategiesFailed, got %v", err)
	}
	if !errors.Is(err, pipeline.ErrSeekTimeout) {
		t.Errorf("expected the joined error to carry ErrSeekTimeout: %v", err)
	}
	if last.State != StateAllFailed {
		t.Errorf("expected final state all-failed, got %s", last)
	}
	if len(result.Attempts) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(result.Attempts))
	}
	for _, a := range result.Attempts {
		if a.Outcome != pipeline.OutcomeSeekTimeout {
			t.Errorf("%s: expected seek-timeout, got %s", a.Method, a.Outcome)
		}
	}
	if len(f.metrics.Attempts) != 4 {
		t.Errorf("expected 4 attempt metrics, got %d", len(f.metrics.Attempts))
	}
	assertTornDown(t, f)
}

func TestRun_NeverFabricatesSuccess(t *testing.T) {
	rt := mocks.NewEncodingRuntime()
	rt.Size = func(string, int, int, int) int { return 2 << 20 }
	f := newFixture(smallInfo(), rt)

	result, err := f.orch.Run(context.Background(), source(1<<20), testConfig())
	if !errors.Is(err, pipeline.ErrAllStrategiesFailed) {
		t.Fatalf("expected ErrAllStrategiesFailed, got %v", err)
	}
	if !errors.Is(err, pipeline.ErrNonImproving) {
		t.Errorf("expected ErrNonImproving in %v", err)
	}
	if result.File.Data != nil {
		t.Error("failed run must not carry output data")
	}
	assertTornDown(t, f)
}

func TestRun_AcceptLargerOnLastRung(t *testing.T) {
	rt := mocks.NewEncodingRuntime()
	rt.Size = func(string, int, int, int) int { return 2 << 20 }
	f := newFixture(smallInfo(), rt)

	cfg := testConfig()
	cfg.Policy.AcceptLargerOnLastRung = true

	result, err := f.orch.Run(context.Background(), source(1<<20), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != pipeline.MethodSimpleFallback {
		t.Errorf("expected simple-fallback, got %s", result.Method)
	}
	if result.CompressionRatio != 0.5 {
		t.Errorf("expected truthful ratio 0.5, got %v", result.CompressionRatio)
	}
}

func TestRun_EmptyOutputAdvancesLadder(t *testing.T) {
	rt := mocks.NewEncodingRuntime()
	rt.Size = func(mimeType string, w, h, frames int) int {
		if strings.Contains(mimeType, "vp9") {
			return 0
		}
		return 1000
	}
	f := newFixture(smallInfo(), rt)

	result, err := f.orch.Run(context.Background(), source(1<<20), testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Attempts[0].Outcome != pipeline.OutcomeEmptyOutput {
		t.Errorf("expected empty-output, got %s", result.Attempts[0].Outcome)
	}
	if result.CompressedSizeMB <= 0 {
		t.Error("compressed size must be positive")
	}
}

func TestRun_ZeroDurationFailsEveryRung(t *testing.T) {
	info := smallInfo()
	info.Duration = 0
	f := newFixture(info, mocks.NewEncodingRuntime())

	_, err := f.orch.Run(context.Background(), source(1<<20), testConfig())
	if !errors.Is(err, pipeline.ErrAllStrategiesFailed) || !errors.Is(err, pipeline.ErrZeroDuration) {
		t.Fatalf("expected all-failed with zero duration, got %v", err)
	}
	assertTornDown(t, f)
}

func TestRun_ThumbnailFailureIsNotFatal(t *testing.T) {
	f := newFixture(smallInfo(), mocks.NewEncodingRuntime())
	f.renderer.EncodeImageFunc = func(image.Image, ports.ImageFormat, int) ([]byte, error) {
		return nil, errors.New("jpeg encoder unavailable")
	}

	result, err := f.orch.Run(context.Background(), source(1<<20), testConfig())
	if err != nil {
		t.Fatalf("thumbnail failure must not fail the run: %v", err)
	}
	if result.Thumbnail != nil {
		t.Error("expected nil thumbnail")
	}
	if len(result.File.Data) == 0 {
		t.Error("expected compressed output")
	}
}

func TestRun_CorruptFrameAtPosterTimeOnlyDropsThumbnail(t *testing.T) {
	baseline := newFixture(smallInfo(), mocks.NewEncodingRuntime())
	want, err := baseline.orch.Run(context.Background(), source(1<<20), testConfig())
	if err != nil {
		t.Fatalf("baseline run failed: %v", err)
	}
	if want.Thumbnail == nil {
		t.Fatal("baseline run should carry a thumbnail")
	}

	f := newFixture(smallInfo(), mocks.NewEncodingRuntime())
	frame := image.NewRGBA(image.Rect(0, 0, 4, 4))
	f.decoder.FrameFunc = func(pos time.Duration) (image.Image, error) {
		if pos == pipeline.DefaultThumbnailAt {
			return nil, errors.New("corrupt macroblock")
		}
		return frame, nil
	}

	got, err := f.orch.Run(context.Background(), source(1<<20), testConfig())
	if err != nil {
		t.Fatalf("a corrupt frame must not fail the run: %v", err)
	}
	if got.Method != want.Method {
		t.Errorf("method changed: %s, baseline %s", got.Method, want.Method)
	}
	if !bytes.Equal(got.File.Data, want.File.Data) {
		t.Errorf("output changed: %d bytes, baseline %d", len(got.File.Data), len(want.File.Data))
	}
	if got.CompressionRatio != want.CompressionRatio {
		t.Errorf("ratio changed: %.3f, baseline %.3f", got.CompressionRatio, want.CompressionRatio)
	}
	if got.Thumbnail != nil {
		t.Error("expected no thumbnail when the poster frame is corrupt")
	}
	if len(got.Attempts) != 1 || got.Attempts[0].Outcome != pipeline.OutcomeSucceeded {
		t.Errorf("unexpected attempts %v", outcomes(got.Attempts))
	}
	assertTornDown(t, f)
}

func TestRun_ThumbnailDisabled(t *testing.T) {
	f := newFixture(smallInfo(), mocks.NewEncodingRuntime())
	cfg := testConfig()
	cfg.Thumbnail.Enabled = false

	result, err := f.orch.Run(context.Background(), source(1<<20), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Thumbnail != nil {
		t.Error("thumbnail produced although disabled")
	}
	if f.decoder.OpenCount() != 2 {
		t.Errorf("expected pre-flight and one attempt session, got %d", f.decoder.OpenCount())
	}
}

func TestRun_ResultProperties(t *testing.T) {
	f := newFixture(smallInfo(), mocks.NewEncodingRuntime())

	result, err := f.orch.Run(context.Background(), source(3<<20+12345), testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CompressedSizeMB <= 0 {
		t.Error("compressed size must be positive")
	}
	if result.CompressionRatio != result.OriginalSizeMB/result.CompressedSizeMB {
		t.Errorf("ratio %v != %v / %v", result.CompressionRatio, result.OriginalSizeMB, result.CompressedSizeMB)
	}
	if result.ProcessingTimeMs < 0 {
		t.Error("processing time must not be negative")
	}
	if len(f.metrics.Ratios) != 1 || f.metrics.Ratios[0] != result.CompressionRatio {
		t.Errorf("unexpected ratio metrics %v", f.metrics.Ratios)
	}
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(smallInfo(), mocks.NewEncodingRuntime())
	src := source(1 << 20)

	first, err := f.orch.Run(context.Background(), src, testConfig())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := f.orch.Run(context.Background(), src, testConfig())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.Method != second.Method || len(first.File.Data) != len(second.File.Data) {
		t.Errorf("runs differ: %s/%d vs %s/%d",
			first.Method, len(first.File.Data), second.Method, len(second.File.Data))
	}
}

func TestRun_AttemptTimeout(t *testing.T) {
	f := newFixture(smallInfo(), mocks.NewEncodingRuntime())
	f.decoder.SeekFunc = mocks.StallingSeek(0)

	cfg := testConfig()
	cfg.SeekTimeout = time.Minute
	cfg.AttemptTimeout = 20 * time.Millisecond
	cfg.Plans = cfg.Plans[:2]

	result, err := f.orch.Run(context.Background(), source(1<<20), cfg)
	if !errors.Is(err, pipeline.ErrAllStrategiesFailed) {
		t.Fatalf("expected ErrAllStrategiesFailed, got %v", err)
	}
	for _, a := range result.Attempts {
		if a.Outcome != pipeline.OutcomeTimeout {
			t.Errorf("%s: expected timeout, got %s", a.Method, a.Outcome)
		}
	}
	assertTornDown(t, f)
}

func TestRun_CallerCancellationStopsLadder(t *testing.T) {
	f := newFixture(smallInfo(), mocks.NewEncodingRuntime())
	ctx, cancel := context.WithCancel(context.Background())
	f.decoder.SeekFunc = func(c context.Context, pos time.Duration) error {
		if pos > 0 {
			cancel()
			<-c.Done()
			return c.Err()
		}
		return nil
	}

	result, err := f.orch.Run(ctx, source(1<<20), testConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(result.Attempts) != 1 {
		t.Errorf("expected the ladder to stop after one attempt, got %d", len(result.Attempts))
	}
	assertTornDown(t, f)
}

func TestRun_InvalidLadder(t *testing.T) {
	f := newFixture(smallInfo(), mocks.NewEncodingRuntime())
	cfg := testConfig()
	cfg.Plans = nil

	if _, err := f.orch.Run(context.Background(), source(1<<20), cfg); err == nil {
		t.Fatal("expected error for empty ladder")
	}
}

func TestRun_ConcurrentCalls(t *testing.T) {
	f := newFixture(smallInfo(), mocks.NewEncodingRuntime())

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			_, err := f.orch.Run(context.Background(), source(1<<20), testConfig())
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent run failed: %v", err)
	}
	if f.runtime.RecorderCount() != 4 {
		t.Errorf("expected 4 recorders, got %d", f.runtime.RecorderCount())
	}
	assertTornDown(t, f)
}

func TestLadderState_String(t *testing.T) {
	tests := []struct {
		state LadderState
		want  string
	}{
		{LadderState{State: StateNotStarted}, "not-started"},
		{LadderState{State: StateAttempting, Index: 2}, "attempting(2)"},
		{LadderState{State: StateSucceeded, Index: 1}, "succeeded(1)"},
		{LadderState{State: StateAllFailed, Index: 4}, "all-failed"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
	if !(LadderState{State: StateAllFailed}).Terminal() {
		t.Error("all-failed must be terminal")
	}
}
