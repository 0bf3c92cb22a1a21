// Package encode implements the stream encoding stage.
package encode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/ports"
)

// Stage binds a capture stream to a recorder from the encoding runtime.
type Stage struct {
	runtime ports.EncodingRuntime
	logger  ports.Logger
}

// NewStage creates a new encode stage.
func NewStage(runtime ports.EncodingRuntime, logger ports.Logger) *Stage {
	return &Stage{
		runtime: runtime,
		logger:  logger.WithComponent("encode"),
	}
}

// Start constructs and starts a recorder for the first target the runtime
// accepts. Recording begins before any frame is rendered.
func (s *Stage) Start(ctx context.Context, input pipeline.EncodeInput) (*Recording, error) {
	if input.Stream == nil {
		return nil, fmt.Errorf("encode: capture stream is required")
	}

	var refusals []error
	for _, target := range input.Targets {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if target.HasAudio() && !input.Audio {
			s.logger.Debug("Skipping %s: audio disabled for this plan", target)
			continue
		}

		opts := ports.RecorderOptions{
			MIMEType:           target.MIMEType,
			VideoBitsPerSecond: input.VideoBitsPerSecond,
		}
		if target.HasAudio() {
			opts.AudioPath = input.AudioPath
		}

		recorder, err := s.runtime.NewRecorder(input.Stream, opts)
		if err != nil {
			s.logger.Debug("Runtime refused %s: %s", target, err)
			refusals = append(refusals, fmt.Errorf("%s: %w", target, err))
			continue
		}
		if err := recorder.Start(); err != nil {
			recorder.Release()
			s.logger.Debug("Recorder for %s failed to start: %s", target, err)
			refusals = append(refusals, fmt.Errorf("start %s: %w", target, err))
			continue
		}

		s.logger.Debug("Recording %dx%d at %.1f fps as %s",
			input.Stream.Width(), input.Stream.Height(), input.Stream.FrameRate(), target)
		return &Recording{
			recorder: recorder,
			target:   target,
			logger:   s.logger,
		}, nil
	}

	if len(refusals) == 0 {
		return nil, pipeline.ErrCapabilityUnavailable
	}
	return nil, fmt.Errorf("%w: %w", pipeline.ErrCapabilityUnavailable, errors.Join(refusals...))
}

// Recording is a started recorder plus the chunks it has emitted.
type Recording struct {
	recorder ports.Recorder
	target   pipeline.EncodeTarget
	logger   ports.Logger

	mu     sync.Mutex
	chunks [][]byte
	size   int

	releaseOnce sync.Once
}

// Target returns the target the recorder was built for.
func (r *Recording) Target() pipeline.EncodeTarget {
	return r.target
}

// MIMEType returns the type the recorder reports producing, falling back to
// the requested target.
func (r *Recording) MIMEType() string {
	if m := r.recorder.MIMEType(); m != "" {
		return m
	}
	return r.target.MIMEType
}

// Collect accumulates chunks in arrival order until the recorder closes
// its chunk channel. A recorder failure yields ErrEncoderFailure.
func (r *Recording) Collect(ctx context.Context) error {
	chunks := r.recorder.Chunks()
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				if err := r.recorder.Err(); err != nil {
					return fmt.Errorf("%w: %v", pipeline.ErrEncoderFailure, err)
				}
				return nil
			}
			if len(chunk) == 0 {
				continue
			}
			r.mu.Lock()
			r.chunks = append(r.chunks, chunk)
			r.size += len(chunk)
			r.mu.Unlock()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop signals end of input and waits for the recorder to finalize.
func (r *Recording) Stop() error {
	if err := r.recorder.Stop(); err != nil {
		return fmt.Errorf("%w: stop: %v", pipeline.ErrEncoderFailure, err)
	}
	return nil
}

// Bytes concatenates the collected chunks. An empty recording is an error.
func (r *Recording) Bytes() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size == 0 {
		return nil, pipeline.ErrEmptyOutput
	}
	r.logger.Debug("Concatenating %d chunks, %d bytes", len(r.chunks), r.size)
	return bytes.Join(r.chunks, nil), nil
}

// ChunkCount returns the number of chunks collected so far.
func (r *Recording) ChunkCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

// Release frees the recorder. Collected chunks stay readable.
// Safe to call repeatedly.
func (r *Recording) Release() {
	r.releaseOnce.Do(r.recorder.Release)
}
