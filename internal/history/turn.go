// File: internal/history/turn.go
package history

import (
	"time"

	"github.com/slidescope/slidescope/api/schemas"
)

// Turn is one completed navigation step: the model's reasoning and action,
// plus the crop observation it produced (if any) and the usage of the call
// that produced it. Turns are append-only and owned by the Manager for the
// lifetime of one run.
type Turn struct {
	ID        string             `json:"id"`
	StepIndex int                `json:"step_index"`
	Reasoning string             `json:"reasoning"`
	Action    schemas.StepAction `json:"action"`

	// Region is set when the action produced a crop.
	Region *schemas.Region `json:"region,omitempty"`
	// CropJPEG holds the crop observation image. Part of the audit record:
	// the upstream image retention window never touches the turn log, so the
	// bytes survive into the serialized trajectory.
	CropJPEG []byte `json:"crop_jpeg,omitempty"`
	// Observation is the text shown to the model alongside the crop (or the
	// conch result when the action was a tool query).
	Observation string `json:"observation,omitempty"`

	Usage     schemas.Usage `json:"usage"`
	CreatedAt time.Time     `json:"created_at"`
}
