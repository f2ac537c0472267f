// File: internal/agent/models.go
package agent

import (
	"fmt"

	"github.com/slidescope/slidescope/api/schemas"
	"github.com/slidescope/slidescope/internal/cropper"
	"github.com/slidescope/slidescope/internal/history"
	"github.com/slidescope/slidescope/internal/pyramid"
)

// Config is the immutable per-run configuration of a Navigator. It is
// created once per run and never mutated afterwards.
type Config struct {
	// MaxSteps is the navigation budget: the maximum number of recorded
	// turns, including the final answer.
	MaxSteps int
	// MaxRetries bounds consecutive correctable errors (provider failures,
	// malformed output, invalid regions) before the run fails.
	MaxRetries int
	// BudgetUSD caps accumulated provider cost; zero disables the cap.
	BudgetUSD float64
	// ThumbnailSize is the long side of the initial axis-guide thumbnail.
	ThumbnailSize int
	// TargetLongSide is the long side of every crop sent to the model.
	TargetLongSide int
	// JPEGQuality applies to all encoded images, in [1,100].
	JPEGQuality int
	// LevelBias is the oversampling bias for pyramid level selection;
	// zero selects the default.
	LevelBias float64
	// MaxRegionPixels is the level-0 area ceiling per crop; zero selects
	// the default.
	MaxRegionPixels int64
	// ImageWindow is how many recent crop images stay in the upstream
	// message history.
	ImageWindow int
	// ForceAnswerRetries bounds the force-final-answer sub-loop.
	ForceAnswerRetries int
	// EnforceFixedIterations rejects answers before the final step, forcing
	// the agent to spend its whole navigation budget.
	EnforceFixedIterations bool
	// EnableConch enables the auxiliary hypothesis-scoring tool.
	EnableConch bool
}

// Validate fails fast on configuration the state machine cannot run with.
func (c Config) Validate() error {
	if c.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be at least 1, got %d", c.MaxSteps)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be in [1,100], got %d", c.JPEGQuality)
	}
	if c.ThumbnailSize < 1 {
		return fmt.Errorf("thumbnail_size must be positive, got %d", c.ThumbnailSize)
	}
	if c.TargetLongSide < 1 {
		return fmt.Errorf("target_long_side must be positive, got %d", c.TargetLongSide)
	}
	if c.ForceAnswerRetries < 1 {
		return fmt.Errorf("force_answer_retries must be at least 1, got %d", c.ForceAnswerRetries)
	}
	if c.BudgetUSD < 0 {
		return fmt.Errorf("budget_usd must be non-negative, got %v", c.BudgetUSD)
	}
	return nil
}

// DefaultConfig returns the configuration the CLI seeds viper with.
func DefaultConfig() Config {
	return Config{
		MaxSteps:           10,
		MaxRetries:         3,
		ThumbnailSize:      1024,
		TargetLongSide:     1024,
		JPEGQuality:        85,
		LevelBias:          pyramid.DefaultBias,
		MaxRegionPixels:    cropper.DefaultMaxRegionPixels,
		ImageWindow:        3,
		ForceAnswerRetries: 2,
	}
}

// runState is the Navigator's only mutable state. consecutiveErrors resets
// exactly once per step, at the single point where the step is confirmed
// successful (the turn record), never scattered across call sites.
// pendingUsage accumulates provider usage since the last confirmed turn, so
// corrective rounds bill against the turn they eventually produce.
type runState struct {
	consecutiveErrors int
	usage             schemas.Usage
	pendingUsage      schemas.Usage
}

// RunResult is the terminal product of one run.
type RunResult struct {
	Outcome    history.Outcome
	Answer     string
	Reason     string
	Trajectory *history.Trajectory
}

// outcomeKind models the explicit step result: the per-step functions never
// signal "done" with a nil sentinel, which is a known source of
// premature-success bugs.
type outcomeKind int

const (
	continueRun outcomeKind = iota
	runSucceeded
	runFailed
)

// stepOutcome is the tagged result of one step (or one recovery loop).
type stepOutcome struct {
	kind    outcomeKind
	answer  string
	outcome history.Outcome
	reason  string
}

func stepContinue() stepOutcome { return stepOutcome{kind: continueRun} }

func stepSucceeded(answer string) stepOutcome {
	return stepOutcome{kind: runSucceeded, answer: answer, outcome: history.OutcomeSucceeded}
}

func stepFailed(outcome history.Outcome, reason string) stepOutcome {
	return stepOutcome{kind: runFailed, outcome: outcome, reason: reason}
}
