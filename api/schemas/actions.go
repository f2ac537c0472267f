// File: api/schemas/actions.go
package schemas

import (
	"fmt"
	"strings"
)

// ActionType discriminates the tagged union of per-step actions the model
// may request. Using a custom string type ensures only predefined constants
// can appear where an ActionType is expected.
type ActionType string

const (
	// ActionCrop requests a higher-resolution crop of a slide region.
	ActionCrop ActionType = "CROP"
	// ActionAnswer ends the run with a final answer.
	ActionAnswer ActionType = "ANSWER"
	// ActionConchQuery asks the auxiliary scoring tool to rank hypotheses
	// against the current region. Feature-flagged; rejected when disabled.
	ActionConchQuery ActionType = "CONCH_QUERY"
)

// StepAction is the structured action the model returns each step.
// Exactly one variant's fields are meaningful, selected by Type.
type StepAction struct {
	Type ActionType `json:"type"`

	// Crop fields (level-0 pixel coordinates).
	X      int `json:"x,omitempty"`
	Y      int `json:"y,omitempty"`
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// Answer field.
	Text string `json:"text,omitempty"`

	// ConchQuery field.
	Hypotheses []string `json:"hypotheses,omitempty"`
}

// Region returns the crop target. Only meaningful when Type == ActionCrop.
func (a StepAction) Region() Region {
	return Region{X: a.X, Y: a.Y, Width: a.Width, Height: a.Height}
}

// Validate checks the structural constraints of the selected variant.
func (a StepAction) Validate() error {
	switch a.Type {
	case ActionCrop:
		if a.Width <= 0 || a.Height <= 0 {
			return fmt.Errorf("crop action requires positive width and height, got w=%d h=%d", a.Width, a.Height)
		}
		if a.X < 0 || a.Y < 0 {
			return fmt.Errorf("crop action requires non-negative origin, got x=%d y=%d", a.X, a.Y)
		}
		return nil
	case ActionAnswer:
		if strings.TrimSpace(a.Text) == "" {
			return fmt.Errorf("answer action requires non-empty text")
		}
		return nil
	case ActionConchQuery:
		if len(a.Hypotheses) == 0 {
			return fmt.Errorf("conch query requires at least one hypothesis")
		}
		for i, h := range a.Hypotheses {
			if strings.TrimSpace(h) == "" {
				return fmt.Errorf("conch query hypothesis %d is empty", i)
			}
		}
		return nil
	case "":
		return fmt.Errorf("action missing required 'type' field")
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

// StepResponse is the unit the LLM collaborator must return per step:
// the model's reasoning plus exactly one action.
type StepResponse struct {
	Reasoning string     `json:"reasoning"`
	Action    StepAction `json:"action"`
}

// Validate enforces the response contract. A violation is a schema/contract
// problem and is surfaced by callers as a ParseError, not a ProviderError.
func (r StepResponse) Validate() error {
	if strings.TrimSpace(r.Reasoning) == "" {
		return fmt.Errorf("step response requires non-empty reasoning")
	}
	return r.Action.Validate()
}
