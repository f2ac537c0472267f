// File: internal/agent/prompts.go
package agent

import (
	"fmt"
	"strings"

	"github.com/slidescope/slidescope/api/schemas"
	"github.com/slidescope/slidescope/internal/geometry"
)

// systemPrompt constructs the core instruction set for the navigator. The
// conch section is only included when the tool is enabled, so the model is
// never invited to call a disabled tool.
func (n *Navigator) systemPrompt() string {
	base := `You are a pathology slide navigator. You answer questions about a gigapixel
whole-slide image by iteratively requesting higher-resolution crops, examining
them, and finally answering.

The slide is too large to view at once. You start from a thumbnail overlaid
with axis guides: lines labeled with absolute level-0 pixel coordinates. All
coordinates you emit are in that single level-0 coordinate system, regardless
of zoom.

Respond to every message with a single JSON object:
{"reasoning": "<what you observe and why you act>", "action": {...}}

Available actions:
- {"type": "CROP", "x": <int>, "y": <int>, "width": <int>, "height": <int>}
  Request a closer look at a region (level-0 pixels). The region must lie
  fully inside the slide bounds.
- {"type": "ANSWER", "text": "<your final answer>"}
  End the run with your answer.`

	conch := ""
	if n.cfg.EnableConch {
		conch = `
- {"type": "CONCH_QUERY", "hypotheses": ["<h1>", "<h2>", ...]}
  Score diagnostic hypotheses against the most recent region. Use when you
  want quantitative support for competing interpretations.`
	}

	closing := `

Examine each crop carefully before deciding. Keep reasoning concise. Your
response must be only the JSON object.`

	return base + conch + closing
}

// thumbnailPrompt is the first user message, shown with the axis-guide
// thumbnail.
func (n *Navigator) thumbnailPrompt(question string, meta schemas.PyramidMetadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	fmt.Fprintf(&b, "Below is the slide thumbnail with axis guides. The slide is %d x %d pixels at level 0.",
		meta.Width, meta.Height)
	if meta.MPPX != nil && meta.MPPY != nil {
		fmt.Fprintf(&b, " Resolution: %.4f x %.4f microns per pixel.", *meta.MPPX, *meta.MPPY)
	}
	fmt.Fprintf(&b, "\nYou have up to %d steps. Step 1 of %d.", n.cfg.MaxSteps, n.cfg.MaxSteps)
	return b.String()
}

// cropObservation describes a successful crop back to the model.
func (n *Navigator) cropObservation(region schemas.Region, step, maxSteps int) string {
	return fmt.Sprintf("Crop of region %s attached. Step %d of %d.", region, step, maxSteps)
}

// invalidRegionFeedback builds the corrective message for an out-of-bounds
// region: the offending coordinates, the slide bounds, and the reason, plus
// a clamped suggestion the model may adopt.
func invalidRegionFeedback(be *geometry.BoundsError) string {
	suggestion := geometry.Clamp(be.Region, be.Bounds)
	return fmt.Sprintf(
		"Your requested crop %s is invalid: %s. The slide bounds are %s. "+
			"A nearby valid region would be %s. Reply with a corrected JSON action.",
		be.Region, be.Reason, be.Bounds, suggestion)
}

// cropFailureFeedback covers failures past validation (oversized region,
// read errors). Never downgraded to silent success.
func cropFailureFeedback(region schemas.Region, cause error) string {
	return fmt.Sprintf(
		"Your requested crop %s could not be produced: %v. "+
			"Request a smaller or different region, or answer if you have enough evidence.",
		region, cause)
}

// disabledToolFeedback rejects a CONCH_QUERY when the tool is off.
func disabledToolFeedback() string {
	return "The CONCH_QUERY tool is not available in this run. " +
		"Choose a CROP action or ANSWER instead."
}

// prematureAnswerFeedback enforces fixed-iteration mode.
func prematureAnswerFeedback(step, maxSteps int) string {
	return fmt.Sprintf(
		"You answered at step %d, but this run requires using all %d navigation steps "+
			"before answering. Continue exploring with a CROP action.", step, maxSteps)
}

// forceAnswerPrompt is sent when the step budget is exhausted without an
// answer.
func forceAnswerPrompt() string {
	return "You have reached the final step. You must answer now: reply with " +
		`{"reasoning": "...", "action": {"type": "ANSWER", "text": "..."}}.`
}
