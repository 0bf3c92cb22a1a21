package pipeline

import (
	"context"
	"errors"
)

// Pipeline failure signals. Only ErrUnreadableSource and
// ErrAllStrategiesFailed are returned to callers of the orchestrator; the
// rest describe why a single attempt failed and advance the ladder.
var (
	ErrUnreadableSource      = errors.New("vidshrink: source unreadable")
	ErrCapabilityUnavailable = errors.New("vidshrink: no supported container/codec")
	ErrZeroDuration          = errors.New("vidshrink: source has zero duration")
	ErrSeekTimeout           = errors.New("vidshrink: seek timed out")
	ErrEncoderFailure        = errors.New("vidshrink: encoder runtime error")
	ErrEmptyOutput           = errors.New("vidshrink: encoder produced zero bytes")
	ErrNonImproving          = errors.New("vidshrink: output is not smaller than source")
	ErrAttemptTimeout        = errors.New("vidshrink: attempt exceeded time limit")
	ErrAllStrategiesFailed   = errors.New("vidshrink: all compression strategies failed")
)

// Attempt outcomes as reported in traces and metrics.
const (
	OutcomeSucceeded    = "succeeded"
	OutcomeUnsupported  = "unsupported"
	OutcomeZeroDuration = "zero-duration"
	OutcomeSeekTimeout  = "seek-timeout"
	OutcomeEncoderError = "encoder-error"
	OutcomeEmptyOutput  = "empty-output"
	OutcomeNonImproving = "non-improving"
	OutcomeTimeout      = "timeout"
	OutcomeUnreadable   = "unreadable"
	OutcomeCanceled     = "canceled"
	OutcomeFailed       = "failed"
)

// Outcome classifies an attempt error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.Is(err, ErrCapabilityUnavailable):
		return OutcomeUnsupported
	case errors.Is(err, ErrZeroDuration):
		return OutcomeZeroDuration
	case errors.Is(err, ErrSeekTimeout):
		return OutcomeSeekTimeout
	case errors.Is(err, ErrEncoderFailure):
		return OutcomeEncoderError
	case errors.Is(err, ErrEmptyOutput):
		return OutcomeEmptyOutput
	case errors.Is(err, ErrNonImproving):
		return OutcomeNonImproving
	case errors.Is(err, ErrAttemptTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrUnreadableSource):
		return OutcomeUnreadable
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	default:
		return OutcomeFailed
	}
}
