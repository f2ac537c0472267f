// File: internal/agent/navigator.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/slidescope/slidescope/api/schemas"
	"github.com/slidescope/slidescope/internal/cropper"
	"github.com/slidescope/slidescope/internal/geometry"
	"github.com/slidescope/slidescope/internal/history"
)

// Navigator is the orchestrating state machine of one run: it builds the
// message history, calls the LLM collaborator, interprets its structured
// action, drives the crop engine, recovers from invalid output, and enforces
// step, retry and budget limits.
//
// A Navigator is strictly sequential: one outstanding LLM call at a time and
// no shared mutable state beyond its own runState. Run concurrency, if any,
// lives at the caller (one Navigator per question).
type Navigator struct {
	cfg    Config
	logger *zap.Logger
	llm    schemas.LLMClient
	reader schemas.SlideReader
	conch  schemas.ConchScorer

	engine *cropper.Engine
	hist   *history.Manager
	state  runState

	runID     string
	question  string
	startedAt time.Time
}

// NewNavigator validates the configuration and wires the collaborators.
// A nil scorer with EnableConch set is a configuration error: the flag
// promises a tool that cannot be called.
func NewNavigator(
	logger *zap.Logger,
	cfg Config,
	llm schemas.LLMClient,
	reader schemas.SlideReader,
	conch schemas.ConchScorer,
) (*Navigator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}
	if cfg.EnableConch && conch == nil {
		return nil, fmt.Errorf("invalid agent config: enable_conch set but no scorer provided")
	}
	if llm == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("slide reader is required")
	}
	return &Navigator{
		cfg:    cfg,
		logger: logger.Named("navigator"),
		llm:    llm,
		reader: reader,
		conch:  conch,
		engine: cropper.NewEngine(reader, logger, cfg.MaxRegionPixels),
	}, nil
}

// Run drives the navigation loop for one question until a terminal state.
// Terminal outcomes (budget, retries, forced termination) are reported in
// the RunResult, not as errors; the returned error is reserved for failures
// to even start (thumbnail rendering) and for context cancellation.
func (n *Navigator) Run(ctx context.Context, question string) (*RunResult, error) {
	n.runID = uuid.NewString()
	n.question = question
	n.startedAt = time.Now().UTC()
	n.state = runState{}
	n.hist = history.NewManager(n.logger, n.systemPrompt(), n.cfg.MaxSteps, n.cfg.ImageWindow)

	thumb, err := n.engine.Thumbnail(ctx, n.cfg.ThumbnailSize, n.cfg.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to render thumbnail: %w", err)
	}
	n.hist.SetThumbnail(n.thumbnailPrompt(question, n.reader.Metadata()), thumb.JPEG)

	n.logger.Info("Run started",
		zap.String("run_id", n.runID),
		zap.Int("max_steps", n.cfg.MaxSteps),
		zap.Bool("fixed_iterations", n.cfg.EnforceFixedIterations),
	)

	for {
		if err := ctx.Err(); err != nil {
			// A cancelled run records no partial turn; the trajectory holds
			// everything confirmed before cancellation.
			return n.finish(stepFailed(history.OutcomeFailedTerminal, fmt.Sprintf("run cancelled: %v", err))), err
		}
		out := n.step(ctx)
		if out.kind == continueRun {
			continue
		}
		return n.finish(out), nil
	}
}

// step executes one full state-machine transition.
func (n *Navigator) step(ctx context.Context) stepOutcome {
	// Budget gate runs before any provider call for this step.
	if n.cfg.BudgetUSD > 0 && n.state.usage.CostUSD >= n.cfg.BudgetUSD {
		return stepFailed(history.OutcomeFailedBudget,
			fmt.Sprintf("accumulated cost $%.4f reached budget $%.4f", n.state.usage.CostUSD, n.cfg.BudgetUSD))
	}

	res, fail := n.callModel(ctx, nil)
	if fail != nil {
		return *fail
	}
	return n.interpret(ctx, res.Response, nil)
}

// interpret dispatches on the model's action. extra carries transient
// corrective messages accumulated by a surrounding recovery loop; they are
// deliberately not part of the recorded history because no Turn exists for
// them.
func (n *Navigator) interpret(ctx context.Context, resp schemas.StepResponse, extra []schemas.Message) stepOutcome {
	action := resp.Action

	// The final-step check is unconditional: any non-answer action on the
	// configured last step goes to the force-answer sub-loop instead of
	// recording a Turn, which is what makes current_step > max_steps
	// unreachable by construction.
	if n.hist.IsFinalStep() && action.Type != schemas.ActionAnswer {
		return n.forceFinalAnswer(ctx)
	}

	switch action.Type {
	case schemas.ActionAnswer:
		if n.cfg.EnforceFixedIterations && !n.hist.IsFinalStep() {
			n.logger.Info("Premature answer rejected (fixed iterations)",
				zap.Int("step", n.hist.CurrentStep()))
			return n.recover(ctx, resp, ErrCodePrematureAnswer,
				prematureAnswerFeedback(n.hist.CurrentStep(), n.cfg.MaxSteps), extra)
		}
		n.confirmTurn(history.Turn{Reasoning: resp.Reasoning, Action: action})
		return stepSucceeded(action.Text)

	case schemas.ActionCrop:
		region := action.Region()
		if err := geometry.Validate(region, n.reader.Metadata().Bounds()); err != nil {
			var be *geometry.BoundsError
			if errors.As(err, &be) {
				return n.recover(ctx, resp, ErrCodeInvalidRegion, invalidRegionFeedback(be), extra)
			}
			return n.recover(ctx, resp, ErrCodeInvalidRegion, cropFailureFeedback(region, err), extra)
		}

		result, err := n.engine.Crop(ctx, region, n.cropOptions())
		if err != nil {
			// Crop engine failures are re-prompted exactly like invalid
			// regions, never silently downgraded to success.
			n.logger.Warn("Crop engine failure", zap.Stringer("region", region), zap.Error(err))
			return n.recover(ctx, resp, ErrCodeCropFailure, cropFailureFeedback(region, err), extra)
		}

		n.confirmTurn(history.Turn{
			Reasoning:   resp.Reasoning,
			Action:      action,
			Region:      &region,
			CropJPEG:    result.JPEG,
			Observation: n.cropObservation(region, n.hist.CurrentStep(), n.cfg.MaxSteps),
		})
		return stepContinue()

	case schemas.ActionConchQuery:
		if !n.cfg.EnableConch {
			// Rejected without recording a Turn so the attempt does not
			// consume navigation budget. The retry counter is checked after
			// the increment inside recover; resetting it on the successful
			// LLM call before this point would make the guard unreachable.
			return n.recover(ctx, resp, ErrCodeFeatureDisabled, disabledToolFeedback(), extra)
		}
		return n.executeConch(ctx, resp, extra)

	default:
		return n.recover(ctx, resp, ErrCodeUnexpectedAction,
			fmt.Sprintf("Action type %q is not supported. Use CROP or ANSWER.", action.Type), extra)
	}
}

// executeConch delegates hypothesis scoring to the external tool and feeds
// the result back as the next observation, consuming one navigation step.
func (n *Navigator) executeConch(ctx context.Context, resp schemas.StepResponse, extra []schemas.Message) stepOutcome {
	region := n.lastRegion()
	result, err := n.conch.Score(ctx, resp.Action.Hypotheses, region)
	if err != nil {
		return n.recover(ctx, resp, ErrCodeToolFailure,
			fmt.Sprintf("Hypothesis scoring failed: %v. Continue with CROP or ANSWER.", err), extra)
	}

	scores, merr := json.MarshalToString(result.Scores)
	if merr != nil {
		scores = fmt.Sprintf("%v", result.Scores)
	}
	n.confirmTurn(history.Turn{
		Reasoning:   resp.Reasoning,
		Action:      resp.Action,
		Observation: fmt.Sprintf("Hypothesis scores: %s. Step %d of %d.", scores, n.hist.CurrentStep(), n.cfg.MaxSteps),
	})
	return stepContinue()
}

// recover is the iterative invalid-output recovery loop. It carries explicit
// state (the offending response, the corrective feedback, the accumulated
// error count) instead of recursing; recursion here would bound stack growth
// only by max_retries, which is fragile to reason about.
//
// The loop exits only through named branches: a recorded Turn (success) or
// consecutive errors reaching max_retries.
func (n *Navigator) recover(ctx context.Context, offending schemas.StepResponse, code ErrorCode, feedback string, extra []schemas.Message) stepOutcome {
	n.state.consecutiveErrors++
	n.logger.Warn("Entering recovery",
		zap.String("code", string(code)),
		zap.Int("consecutive_errors", n.state.consecutiveErrors),
	)
	extra = append(extra, modelEcho(offending), correctiveMessage(feedback))

	for {
		if n.state.consecutiveErrors >= n.cfg.MaxRetries {
			return stepFailed(history.OutcomeFailedMaxRetries,
				fmt.Sprintf("exhausted %d retries; last error: %s: %s", n.cfg.MaxRetries, code, feedback))
		}

		res, fail := n.callModel(ctx, extra)
		if fail != nil {
			// Provider retries exhausted inside callModel, or cancellation.
			return *fail
		}

		resp := res.Response
		action := resp.Action

		if n.hist.IsFinalStep() && action.Type != schemas.ActionAnswer {
			return n.forceFinalAnswer(ctx)
		}

		switch action.Type {
		case schemas.ActionAnswer:
			if n.cfg.EnforceFixedIterations && !n.hist.IsFinalStep() {
				n.state.consecutiveErrors++
				code = ErrCodePrematureAnswer
				feedback = prematureAnswerFeedback(n.hist.CurrentStep(), n.cfg.MaxSteps)
				extra = append(extra, modelEcho(resp), correctiveMessage(feedback))
				continue
			}
			n.confirmTurn(history.Turn{Reasoning: resp.Reasoning, Action: action})
			return stepSucceeded(action.Text)

		case schemas.ActionCrop:
			region := action.Region()
			if err := geometry.Validate(region, n.reader.Metadata().Bounds()); err != nil {
				n.state.consecutiveErrors++
				code = ErrCodeInvalidRegion
				var be *geometry.BoundsError
				if errors.As(err, &be) {
					feedback = invalidRegionFeedback(be)
				} else {
					feedback = cropFailureFeedback(region, err)
				}
				extra = append(extra, modelEcho(resp), correctiveMessage(feedback))
				continue
			}
			result, err := n.engine.Crop(ctx, region, n.cropOptions())
			if err != nil {
				n.state.consecutiveErrors++
				code = ErrCodeCropFailure
				feedback = cropFailureFeedback(region, err)
				extra = append(extra, modelEcho(resp), correctiveMessage(feedback))
				continue
			}
			n.confirmTurn(history.Turn{
				Reasoning:   resp.Reasoning,
				Action:      action,
				Region:      &region,
				CropJPEG:    result.JPEG,
				Observation: n.cropObservation(region, n.hist.CurrentStep(), n.cfg.MaxSteps),
			})
			return stepContinue()

		default:
			// ConchQuery (disabled or mid-recovery) and unknown actions all
			// count as another failed correction attempt.
			n.state.consecutiveErrors++
			code = ErrCodeUnexpectedAction
			if action.Type == schemas.ActionConchQuery {
				code = ErrCodeFeatureDisabled
				feedback = disabledToolFeedback()
			} else {
				feedback = fmt.Sprintf("Action type %q is not supported. Use CROP or ANSWER.", action.Type)
			}
			extra = append(extra, modelEcho(resp), correctiveMessage(feedback))
			continue
		}
	}
}

// forceFinalAnswer is the bounded sub-loop entered at the configured final
// step when the model has not answered. It never fabricates an answer: if
// the retries exhaust, the run terminates with a descriptive reason.
//
// A ConchQuery arriving here is treated as a free corrective round — it
// consumes a force-answer attempt but never a navigation step (see
// DESIGN.md for the policy decision).
func (n *Navigator) forceFinalAnswer(ctx context.Context) stepOutcome {
	n.logger.Info("Forcing final answer", zap.Int("step", n.hist.CurrentStep()))
	extra := []schemas.Message{correctiveMessage(forceAnswerPrompt())}

	for attempt := 1; attempt <= n.cfg.ForceAnswerRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return stepFailed(history.OutcomeFailedTerminal, fmt.Sprintf("run cancelled: %v", err))
		}

		res, err := n.llm.GenerateStep(ctx, append(n.hist.Messages(), extra...))
		if err != nil {
			n.logger.Warn("Force-answer attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		n.state.usage.Add(res.Usage)
		n.state.pendingUsage.Add(res.Usage)

		resp := res.Response
		if resp.Action.Type == schemas.ActionAnswer {
			n.confirmTurn(history.Turn{Reasoning: resp.Reasoning, Action: resp.Action})
			return stepSucceeded(resp.Action.Text)
		}
		extra = append(extra, modelEcho(resp), correctiveMessage(forceAnswerPrompt()))
	}

	return stepFailed(history.OutcomeFailedTerminal,
		fmt.Sprintf("model did not answer at the final step after %d prompts", n.cfg.ForceAnswerRetries))
}

// callModel performs the LLM call with the per-step retry policy: provider
// and parse failures increment consecutiveErrors (logged distinctly) and the
// same step is retried without recording a Turn; the run fails once the
// counter reaches max_retries. A non-nil stepOutcome means terminal.
func (n *Navigator) callModel(ctx context.Context, extra []schemas.Message) (*schemas.StepResult, *stepOutcome) {
	for {
		if err := ctx.Err(); err != nil {
			out := stepFailed(history.OutcomeFailedTerminal, fmt.Sprintf("run cancelled: %v", err))
			return nil, &out
		}

		res, err := n.llm.GenerateStep(ctx, append(n.hist.Messages(), extra...))
		if err != nil {
			n.state.consecutiveErrors++
			switch {
			case schemas.IsParseError(err):
				// Parse failures share the retry budget but are logged
				// distinctly: they indicate a contract violation, not a
				// transient provider fault.
				n.logger.Warn("Malformed model output",
					zap.Int("consecutive_errors", n.state.consecutiveErrors), zap.Error(err))
			default:
				n.logger.Warn("Provider call failed",
					zap.Int("consecutive_errors", n.state.consecutiveErrors), zap.Error(err))
			}
			if n.state.consecutiveErrors >= n.cfg.MaxRetries {
				out := stepFailed(history.OutcomeFailedMaxRetries,
					fmt.Sprintf("exhausted %d retries; last error: %v", n.cfg.MaxRetries, err))
				return nil, &out
			}
			continue
		}

		n.state.usage.Add(res.Usage)
		n.state.pendingUsage.Add(res.Usage)
		return &res, nil
	}
}

// confirmTurn is the single point where a step is confirmed successful:
// the Turn is recorded (advancing the derived step counter) carrying every
// provider call billed since the previous turn, and the consecutive-error
// counter resets. No other code path resets either.
func (n *Navigator) confirmTurn(t history.Turn) {
	t.Usage = n.state.pendingUsage
	n.state.pendingUsage = schemas.Usage{}
	n.hist.AppendTurn(t)
	n.state.consecutiveErrors = 0
}

// finish assembles the terminal RunResult with the full trajectory; partial
// progress is never discarded.
func (n *Navigator) finish(out stepOutcome) *RunResult {
	tr := &history.Trajectory{
		RunID:      n.runID,
		Question:   n.question,
		Turns:      n.hist.Turns(),
		Outcome:    out.outcome,
		Reason:     out.reason,
		Answer:     out.answer,
		TotalUsage: n.state.usage,
		StartedAt:  n.startedAt,
		FinishedAt: time.Now().UTC(),
	}
	n.logger.Info("Run finished",
		zap.String("run_id", n.runID),
		zap.String("outcome", string(out.outcome)),
		zap.Int("turns", len(tr.Turns)),
		zap.Float64("cost_usd", n.state.usage.CostUSD),
	)
	return &RunResult{
		Outcome:    out.outcome,
		Answer:     out.answer,
		Reason:     out.reason,
		Trajectory: tr,
	}
}

func (n *Navigator) cropOptions() cropper.Options {
	return cropper.Options{
		TargetLongSide: n.cfg.TargetLongSide,
		JPEGQuality:    n.cfg.JPEGQuality,
		Bias:           n.cfg.LevelBias,
	}
}

// lastRegion returns the most recent crop region, falling back to the full
// slide when no crop has happened yet.
func (n *Navigator) lastRegion() schemas.Region {
	turns := n.hist.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Region != nil {
			return *turns[i].Region
		}
	}
	return n.reader.Metadata().Bounds()
}

// modelEcho reconstructs the model's offending reply so corrective rounds
// keep a coherent conversation without recording a Turn.
func modelEcho(resp schemas.StepResponse) schemas.Message {
	actionJSON, err := json.MarshalToString(resp.Action)
	if err != nil {
		actionJSON = fmt.Sprintf("%+v", resp.Action)
	}
	return schemas.Message{
		Role:  schemas.RoleModel,
		Parts: []schemas.Part{schemas.TextPart(fmt.Sprintf("%s\nAction: %s", resp.Reasoning, actionJSON))},
	}
}

func correctiveMessage(feedback string) schemas.Message {
	return schemas.Message{
		Role:  schemas.RoleUser,
		Parts: []schemas.Part{schemas.TextPart(feedback)},
	}
}
