// File: internal/history/trajectory.go
package history

import (
	"fmt"
	"os"
	"time"

	json "github.com/json-iterator/go"

	"github.com/slidescope/slidescope/api/schemas"
)

// Outcome names the terminal state a run ended in.
type Outcome string

const (
	OutcomeSucceeded        Outcome = "SUCCEEDED"
	OutcomeFailedBudget     Outcome = "FAILED_BUDGET"
	OutcomeFailedMaxRetries Outcome = "FAILED_MAX_RETRIES"
	OutcomeFailedTerminal   Outcome = "FAILED_TERMINAL"
)

// Trajectory is the ordered, serializable record of every turn plus the
// final outcome. It is produced for downstream evaluation and visualization;
// the core never interprets it. Partial progress is never discarded: a
// failed run's trajectory carries every turn recorded before the failure.
type Trajectory struct {
	RunID      string        `json:"run_id"`
	Question   string        `json:"question"`
	Turns      []Turn        `json:"turns"`
	Outcome    Outcome       `json:"outcome"`
	Reason     string        `json:"reason,omitempty"`
	Answer     string        `json:"answer,omitempty"`
	TotalUsage schemas.Usage `json:"total_usage"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// WriteFile serializes the trajectory as indented JSON at path.
func (tr *Trajectory) WriteFile(path string) error {
	data, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(tr, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal trajectory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write trajectory: %w", err)
	}
	return nil
}
