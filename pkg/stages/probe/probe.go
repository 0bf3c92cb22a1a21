// Package probe implements the capability probing stage.
package probe

import (
	"context"

	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/ports"
)

// Stage asks the encoding runtime which of a plan's candidates it can record.
type Stage struct {
	runtime ports.EncodingRuntime
	logger  ports.Logger
}

// NewStage creates a new probe stage.
func NewStage(runtime ports.EncodingRuntime, logger ports.Logger) *Stage {
	return &Stage{
		runtime: runtime,
		logger:  logger.WithComponent("probe"),
	}
}

// Execute returns the supported candidates in preference order. Absence of
// support is reported through ProbeResult.Found, never as an error.
func (s *Stage) Execute(ctx context.Context, input pipeline.ProbeInput) (pipeline.ProbeResult, error) {
	result := pipeline.ProbeResult{}

	for _, candidate := range input.Candidates {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if candidate == "" {
			continue
		}
		if s.runtime.IsTypeSupported(candidate) {
			s.logger.Debug("Supported: %s", candidate)
			result.Supported = append(result.Supported, pipeline.ParseTarget(candidate))
		} else {
			s.logger.Debug("Not supported: %s", candidate)
		}
	}

	if len(result.Supported) == 0 && input.AllowRuntimeDefault {
		s.logger.Debug("No candidate supported, using runtime default")
		result.Supported = append(result.Supported, pipeline.EncodeTarget{})
	}

	result.Found = len(result.Supported) > 0
	return result, nil
}
