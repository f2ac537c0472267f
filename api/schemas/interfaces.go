// File: api/schemas/interfaces.go
package schemas

import (
	"context"
	"image"
)

// LLMClient is the narrow protocol through which the navigation agent talks
// to a large multimodal model. Implementations own HTTP-level concerns
// (retries, rate limiting, provider schema encoding) and must fail with
// either *ProviderError (transient) or *ParseError (contract violation).
type LLMClient interface {
	// GenerateStep sends the ordered message history and returns the model's
	// parsed step response plus the usage reported for the call.
	GenerateStep(ctx context.Context, messages []Message) (StepResult, error)
}

// SlideReader is the pyramidal-image-reader collaborator. The core never
// decides which pyramid file format backs it; it only consumes levels.
type SlideReader interface {
	// Metadata returns the pyramid's dimensions and downsample table.
	Metadata() PyramidMetadata
	// ReadRegion reads a region given in level-relative coordinates from the
	// given level. Failures are always *ReadError.
	ReadRegion(ctx context.Context, region Region, level int) (image.Image, error)
}

// ConchScorer is the optional auxiliary tool that scores diagnostic
// hypotheses against a slide region. Only consulted when the feature flag
// enables it.
type ConchScorer interface {
	Score(ctx context.Context, hypotheses []string, region Region) (ConchResult, error)
}

// ConchResult is the scorer's ranked output, fed back to the model verbatim
// as the next observation.
type ConchResult struct {
	Scores map[string]float64 `json:"scores"`
}
