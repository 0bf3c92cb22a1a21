// Package thumbnail extracts a poster still from the source video.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/disintegration/imaging"

	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/ports"
)

// ErrNoFrame is returned when the decoder yields no image at the timestamp.
var ErrNoFrame = errors.New("thumbnail: no frame decoded")

// Stage opens its own decode session and grabs one frame.
type Stage struct {
	decoder  ports.MediaDecoder
	renderer ports.Renderer
	sink     ports.DebugSink
	logger   ports.Logger
}

// NewStage creates a new thumbnail stage.
func NewStage(decoder ports.MediaDecoder, renderer ports.Renderer, sink ports.DebugSink, logger ports.Logger) *Stage {
	return &Stage{
		decoder:  decoder,
		renderer: renderer,
		sink:     sink,
		logger:   logger.WithComponent("thumbnail"),
	}
}

// ClampTimestamp limits requested to [0, duration-ThumbnailEndMargin].
func ClampTimestamp(requested, duration time.Duration) time.Duration {
	limit := duration - pipeline.ThumbnailEndMargin
	if limit < 0 {
		limit = 0
	}
	if requested > limit {
		requested = limit
	}
	if requested < 0 {
		requested = 0
	}
	return requested
}

// Execute produces the poster image at native dimensions, or fitted into
// MaxDimension when set.
func (s *Stage) Execute(ctx context.Context, input pipeline.ThumbnailInput) (pipeline.Thumbnail, error) {
	result := pipeline.Thumbnail{}

	session, err := s.decoder.Open(ctx, input.Source.Media())
	if err != nil {
		return result, fmt.Errorf("open source: %w", err)
	}
	defer session.Close()

	info := session.Info()
	if info.Duration <= 0 {
		return result, pipeline.ErrZeroDuration
	}

	at := ClampTimestamp(input.At, info.Duration)
	timeout := input.SeekTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	seekCtx, cancel := context.WithTimeout(ctx, timeout)
	err = session.Seek(seekCtx, at)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return result, fmt.Errorf("%w at %s", pipeline.ErrSeekTimeout, at)
		}
		return result, fmt.Errorf("seek to %s: %w", at, err)
	}

	frame, err := session.Frame()
	if err != nil {
		return result, fmt.Errorf("decode frame at %s: %w", at, err)
	}
	if frame == nil {
		return result, ErrNoFrame
	}

	width, height := info.Width, info.Height
	if width <= 0 || height <= 0 {
		b := frame.Bounds()
		width, height = b.Dx(), b.Dy()
	}

	canvas := s.renderer.CreateCanvas(width, height, color.Black)
	canvas.DrawImageScaled(frame, 0, 0, width, height)
	poster := canvas.ToImage()

	if input.MaxDimension > 0 && (width > input.MaxDimension || height > input.MaxDimension) {
		poster = imaging.Fit(poster, input.MaxDimension, input.MaxDimension, imaging.Lanczos)
		width, height = poster.Bounds().Dx(), poster.Bounds().Dy()
	}

	quality := input.Quality
	if quality <= 0 {
		quality = 80
	}
	data, err := s.renderer.EncodeImage(poster, input.Format, quality)
	if err != nil {
		return result, fmt.Errorf("encode %s: %w", input.Format, err)
	}
	if len(data) == 0 {
		return result, fmt.Errorf("encode %s: empty image", input.Format)
	}

	if s.sink.Enabled() {
		s.sink.SaveThumbnail(data, input.Format.String())
	}
	s.logger.Debug("Poster at %s: %dx%d, %d bytes", at, width, height, len(data))

	result.Data = data
	result.MIMEType = input.Format.MIMEType()
	result.Width = width
	result.Height = height
	result.At = at
	return result, nil
}
