// Package ladder defines the default strategy ladder and the rule that
// decides whether an attempt's output is kept.
package ladder

import (
	"fmt"
	"math"

	"github.com/user/vidshrink/pkg/pipeline"
)

// Candidate MIME types, grouped by rung.
var (
	QualityCandidates = []string{
		"video/webm;codecs=vp9,opus",
		"video/mp4;codecs=avc1.640028,mp4a.40.2",
		"video/webm;codecs=vp9",
	}
	BalancedCandidates = []string{
		"video/webm;codecs=vp8,opus",
		"video/mp4;codecs=avc1.42E01E,mp4a.40.2",
		"video/webm;codecs=vp8",
	}
	AggressiveCandidates = []string{
		"video/webm;codecs=vp8,opus",
		"video/webm;codecs=vp8",
		"video/mp4;codecs=avc1.42E01E",
	}
	SimpleCandidates = []string{
		"video/webm",
		"video/mp4",
	}
)

// Default returns the four-rung ladder, most quality-preserving first.
// The returned slice is a fresh copy.
func Default() []pipeline.CompressionPlan {
	return []pipeline.CompressionPlan{
		{
			Method:             pipeline.MethodQualityPreserving,
			Scale:              1.0,
			FrameRate:          30,
			FrameSkip:          1,
			Candidates:         clone(QualityCandidates),
			Audio:              true,
			VideoBitsPerSecond: 2_500_000,
			QualityScore:       4,
		},
		{
			Method:             pipeline.MethodBalanced,
			Scale:              0.8,
			FrameRate:          24,
			FrameSkip:          1,
			Candidates:         clone(BalancedCandidates),
			Audio:              true,
			VideoBitsPerSecond: 1_200_000,
			QualityScore:       3,
		},
		{
			Method:             pipeline.MethodAggressive,
			Scale:              0.5,
			FrameRate:          20,
			FrameSkip:          2,
			Candidates:         clone(AggressiveCandidates),
			Audio:              true,
			VideoBitsPerSecond: 600_000,
			QualityScore:       2,
		},
		{
			Method:              pipeline.MethodSimpleFallback,
			Scale:               0.7,
			FrameRate:           15,
			FrameSkip:           3,
			Candidates:          clone(SimpleCandidates),
			Audio:               false,
			AllowRuntimeDefault: true,
			VideoBitsPerSecond:  400_000,
			QualityScore:        1,
		},
	}
}

// Without returns plans minus the named methods, preserving order.
func Without(plans []pipeline.CompressionPlan, methods ...pipeline.Method) []pipeline.CompressionPlan {
	out := make([]pipeline.CompressionPlan, 0, len(plans))
	for _, p := range plans {
		skip := false
		for _, m := range methods {
			if p.Method == m {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, p)
		}
	}
	return out
}

// Find returns the plan for method.
func Find(plans []pipeline.CompressionPlan, method pipeline.Method) (pipeline.CompressionPlan, bool) {
	for _, p := range plans {
		if p.Method == method {
			return p, true
		}
	}
	return pipeline.CompressionPlan{}, false
}

// Validate checks every plan and rejects duplicates.
func Validate(plans []pipeline.CompressionPlan) error {
	if len(plans) == 0 {
		return fmt.Errorf("ladder is empty")
	}
	seen := make(map[pipeline.Method]bool, len(plans))
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Method] {
			return fmt.Errorf("duplicate method %q", p.Method)
		}
		seen[p.Method] = true
	}
	return nil
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}

// Policy decides whether an attempt's output is kept.
type Policy struct {
	// MinSavings is the fraction of the original size an output must save.
	// 0.05 keeps outputs at or below 95% of the source.
	MinSavings float64

	// AcceptLargerOnLastRung keeps the final rung's output even when it does
	// not meet MinSavings.
	AcceptLargerOnLastRung bool
}

// DefaultPolicy returns the acceptance policy used unless configured.
func DefaultPolicy() Policy {
	return Policy{MinSavings: 0.05}
}

// Threshold returns the largest accepted output size for an original size.
func (p Policy) Threshold(originalBytes int) int {
	return int(math.Floor(float64(originalBytes)*(1-p.MinSavings) + 1e-9))
}

// Accept checks an output size against the policy.
func (p Policy) Accept(originalBytes, compressedBytes int, lastRung bool) error {
	if compressedBytes <= 0 {
		return pipeline.ErrEmptyOutput
	}
	if compressedBytes <= p.Threshold(originalBytes) {
		return nil
	}
	if lastRung && p.AcceptLargerOnLastRung {
		return nil
	}
	return fmt.Errorf("%w: %d bytes vs %d original (limit %d)",
		pipeline.ErrNonImproving, compressedBytes, originalBytes, p.Threshold(originalBytes))
}
