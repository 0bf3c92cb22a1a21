// Package render implements the seek-and-draw frame rendering stage.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/ports"
)

// DefaultSeekTimeout bounds a single seek when the input sets none.
const DefaultSeekTimeout = 5 * time.Second

// debugSampleEvery controls how often drawn frames go to the debug sink.
const debugSampleEvery = 30

// Stage walks a decode session at the plan's frame rate and commits every
// FrameSkip-th frame to the surface's capture stream.
type Stage struct {
	sink   ports.DebugSink
	logger ports.Logger
}

// NewStage creates a new render stage.
func NewStage(sink ports.DebugSink, logger ports.Logger) *Stage {
	return &Stage{
		sink:   sink,
		logger: logger.WithComponent("render"),
	}
}

// Execute renders until the source duration or the frame budget is reached.
// Seeks are issued in non-decreasing order, one per loop iteration.
func (s *Stage) Execute(ctx context.Context, input pipeline.RenderInput) (pipeline.RenderResult, error) {
	result := pipeline.RenderResult{}

	if input.Session == nil || input.Surface == nil {
		return result, fmt.Errorf("render: session and surface are required")
	}
	if input.FrameRate < 1 || input.FrameSkip < 1 {
		return result, fmt.Errorf("render: invalid cadence %d fps / skip %d", input.FrameRate, input.FrameSkip)
	}

	info := input.Session.Info()
	if info.Duration <= 0 {
		return result, pipeline.ErrZeroDuration
	}
	result.Duration = info.Duration

	timeout := input.SeekTimeout
	if timeout <= 0 {
		timeout = DefaultSeekTimeout
	}

	s.logger.Debug("Rendering %s at %d fps, skip %d, surface %dx%d",
		info.Duration, input.FrameRate, input.FrameSkip, input.Surface.Width(), input.Surface.Height())

	decoded := false
	for counter := 0; ; counter++ {
		// Positions are derived from the counter so rounding never accumulates.
		position := time.Duration(counter) * time.Second / time.Duration(input.FrameRate)
		if position >= info.Duration {
			break
		}
		if input.MaxFrames > 0 && counter >= input.MaxFrames {
			s.logger.Debug("Frame budget of %d reached", input.MaxFrames)
			break
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		seekErr := seek(ctx, input.Session, position, timeout)
		if seekErr != nil && (errors.Is(seekErr, pipeline.ErrSeekTimeout) || ctx.Err() != nil) {
			return result, seekErr
		}
		result.FramesRendered++

		if counter%input.FrameSkip != 0 {
			continue
		}

		img, err := frameAt(input.Session, seekErr)
		if err != nil {
			if !decoded {
				return result, fmt.Errorf("%w: frame at %s: %v", pipeline.ErrUnreadableSource, position, err)
			}
			// The surface keeps the last good frame; it is committed again.
			s.logger.Debug("Frame at %s unreadable, repeating previous frame: %s", position, err)
			result.FramesRepeated++
		} else {
			decoded = true
			input.Surface.Draw(img)
		}

		snapshot, err := input.Surface.Commit(ctx, position)
		if err != nil {
			return result, fmt.Errorf("commit frame at %s: %w", position, err)
		}
		result.FramesDrawn++

		if s.sink.Enabled() && result.FramesDrawn%debugSampleEvery == 1 {
			s.sink.SaveRenderedFrame(input.Attempt, result.FramesDrawn, snapshot)
		}
	}

	s.logger.Debug("Rendered %d frames, committed %d", result.FramesRendered, result.FramesDrawn)
	if result.FramesRepeated > 0 {
		s.logger.Warn("Repeated %d unreadable frames", result.FramesRepeated)
	}
	return result, nil
}

// frameAt returns the decoded frame at the last seek position.
func frameAt(session ports.DecodeSession, seekErr error) (image.Image, error) {
	if seekErr != nil {
		return nil, seekErr
	}
	img, err := session.Frame()
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, errors.New("no frame decoded")
	}
	return img, nil
}

// seek moves the session to position, translating a stall into ErrSeekTimeout.
func seek(ctx context.Context, session ports.DecodeSession, position, timeout time.Duration) error {
	seekCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := session.Seek(seekCtx, position)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: no frame at %s after %s", pipeline.ErrSeekTimeout, position, timeout)
	}
	return fmt.Errorf("seek to %s: %w", position, err)
}
