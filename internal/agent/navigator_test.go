// File: internal/agent/navigator_test.go
package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slidescope/slidescope/api/schemas"
	"github.com/slidescope/slidescope/internal/history"
)

func newNavigator(t *testing.T, cfg Config, client *scriptedClient, scorer schemas.ConchScorer) *Navigator {
	t.Helper()
	nav, err := NewNavigator(zap.NewNop(), cfg, client, testReader(), scorer)
	require.NoError(t, err)
	return nav
}

func TestRunSucceedsWithCropsThenAnswer(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		cropStep(100, 100, 400, 300),
		cropStep(200, 150, 256, 256),
		answerStep("benign tissue"),
	}}
	nav := newNavigator(t, testConfig(), client, nil)

	res, err := nav.Run(context.Background(), "is this malignant?")
	require.NoError(t, err)

	assert.Equal(t, history.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "benign tissue", res.Answer)
	require.Len(t, res.Trajectory.Turns, 3)
	assert.Equal(t, schemas.ActionCrop, res.Trajectory.Turns[0].Action.Type)
	assert.Equal(t, schemas.ActionAnswer, res.Trajectory.Turns[2].Action.Type)
	assert.Positive(t, res.Trajectory.TotalUsage.CostUSD)

	// System prompt heads every call in full.
	for _, call := range client.calls {
		require.NotEmpty(t, call)
		assert.Equal(t, schemas.RoleSystem, call[0].Role)
	}
}

func TestTurnsRecordPerCallUsage(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		cropStep(100, 100, 400, 300),
		answerStep("done"),
	}}
	nav := newNavigator(t, testConfig(), client, nil)

	res, err := nav.Run(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, res.Trajectory.Turns, 2)

	var summed schemas.Usage
	for i, turn := range res.Trajectory.Turns {
		assert.Equal(t, 100, turn.Usage.PromptTokens, "turn %d", i)
		assert.Equal(t, 50, turn.Usage.CompletionTokens, "turn %d", i)
		assert.InDelta(t, 0.01, turn.Usage.CostUSD, 1e-9, "turn %d", i)
		summed.Add(turn.Usage)
	}
	// Per-turn usage accounts for the whole run.
	assert.Equal(t, res.Trajectory.TotalUsage.PromptTokens, summed.PromptTokens)
	assert.InDelta(t, res.Trajectory.TotalUsage.CostUSD, summed.CostUSD, 1e-9)
}

func TestRecoveryUsageBillsAgainstTheConfirmedTurn(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		cropStep(1900, 900, 500, 500), // out of bounds: corrective round
		cropStep(100, 100, 300, 300),  // corrected crop becomes the turn
		answerStep("done"),
	}}
	nav := newNavigator(t, testConfig(), client, nil)

	res, err := nav.Run(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, res.Trajectory.Turns, 2)

	// The crop turn carries both model calls that led to it.
	assert.Equal(t, 200, res.Trajectory.Turns[0].Usage.PromptTokens)
	assert.InDelta(t, 0.02, res.Trajectory.Turns[0].Usage.CostUSD, 1e-9)
	// The answer turn carries only its own call.
	assert.Equal(t, 100, res.Trajectory.Turns[1].Usage.PromptTokens)
	assert.InDelta(t, 0.01, res.Trajectory.Turns[1].Usage.CostUSD, 1e-9)
}

func TestInvalidRegionRecoveryRecordsOnlyTheSuccessfulCrop(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		cropStep(1900, 900, 500, 500), // right and bottom edges overflow
		cropStep(-10, 0, 100, 100),    // negative origin
		cropStep(100, 100, 400, 300),  // valid
		answerStep("done"),
	}}
	nav := newNavigator(t, testConfig(), client, nil)

	res, err := nav.Run(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, history.OutcomeSucceeded, res.Outcome)
	// Exactly one Turn for the successful crop, not three.
	require.Len(t, res.Trajectory.Turns, 2)
	assert.Equal(t, schemas.ActionCrop, res.Trajectory.Turns[0].Action.Type)
	require.NotNil(t, res.Trajectory.Turns[0].Region)
	assert.Equal(t, schemas.Region{X: 100, Y: 100, Width: 400, Height: 300}, *res.Trajectory.Turns[0].Region)
	// Successful recovery resets the error counter.
	assert.Zero(t, nav.state.consecutiveErrors)
}

func TestRecoveryFeedbackCarriesCoordinatesAndBounds(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		cropStep(1900, 900, 500, 500),
		answerStep("giving up exploring"),
	}}
	nav := newNavigator(t, testConfig(), client, nil)

	_, err := nav.Run(context.Background(), "q")
	require.NoError(t, err)

	// The second call must include the corrective message with the
	// offending coordinates and the slide bounds.
	last := client.lastCall()
	var corrective string
	for _, msg := range last {
		for _, p := range msg.Parts {
			if msg.Role == schemas.RoleUser && p.Text != "" {
				corrective = p.Text
			}
		}
	}
	assert.Contains(t, corrective, "(x=1900, y=900, w=500, h=500)")
	assert.Contains(t, corrective, "(x=0, y=0, w=2048, h=1024)")
}

func TestProviderFailuresDuringRecoveryExhaustRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	client := &scriptedClient{steps: []scriptedStep{
		cropStep(100, 100, 300, 300), // valid crop: one recorded turn
		cropStep(5000, 5000, 10, 10), // invalid: enters recovery
		providerFailure(),
		providerFailure(),
		providerFailure(),
	}}
	nav := newNavigator(t, cfg, client, nil)

	res, err := nav.Run(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, history.OutcomeFailedMaxRetries, res.Outcome)
	assert.NotEmpty(t, res.Reason)
	// No Turn beyond the last valid one is recorded.
	require.Len(t, res.Trajectory.Turns, 1)
	assert.Equal(t, schemas.ActionCrop, res.Trajectory.Turns[0].Action.Type)
}

func TestConsecutiveProviderFailuresFailTheRun(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	client := &scriptedClient{steps: []scriptedStep{
		providerFailure(),
		providerFailure(),
	}}
	nav := newNavigator(t, cfg, client, nil)

	res, err := nav.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, history.OutcomeFailedMaxRetries, res.Outcome)
	assert.Empty(t, res.Trajectory.Turns)
}

func TestParseFailureRetriesThenSucceeds(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		parseFailure(),
		answerStep("recovered"),
	}}
	nav := newNavigator(t, testConfig(), client, nil)

	res, err := nav.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, history.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "recovered", res.Answer)
}

func TestBudgetGateTerminatesGracefully(t *testing.T) {
	cfg := testConfig()
	cfg.BudgetUSD = 0.005 // below the cost of a single scripted call (0.01)
	client := &scriptedClient{steps: []scriptedStep{
		cropStep(100, 100, 300, 300),
		answerStep("never reached"),
	}}
	nav := newNavigator(t, cfg, client, nil)

	res, err := nav.Run(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, history.OutcomeFailedBudget, res.Outcome)
	// The first step completed before the gate fired; its turn is kept.
	require.Len(t, res.Trajectory.Turns, 1)
	assert.Contains(t, res.Reason, "budget")
}

func TestDisabledConchIsRejectedWithoutConsumingSteps(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	cfg.EnableConch = false
	client := &scriptedClient{steps: []scriptedStep{
		conchStep("adenocarcinoma", "benign"),
		conchStep("adenocarcinoma"),
	}}
	nav := newNavigator(t, cfg, client, nil)

	res, err := nav.Run(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, history.OutcomeFailedMaxRetries, res.Outcome)
	// The rejected tool calls never consumed navigation budget.
	assert.Empty(t, res.Trajectory.Turns)
}

func TestDisabledConchRecoversOnCorrectedAction(t *testing.T) {
	cfg := testConfig()
	cfg.EnableConch = false
	client := &scriptedClient{steps: []scriptedStep{
		conchStep("some hypothesis"),
		answerStep("fixed"),
	}}
	nav := newNavigator(t, cfg, client, nil)

	res, err := nav.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, history.OutcomeSucceeded, res.Outcome)

	last := client.lastCall()
	found := false
	for _, msg := range last {
		for _, p := range msg.Parts {
			if p.Text != "" && msg.Role == schemas.RoleUser && p.Text == disabledToolFeedback() {
				found = true
			}
		}
	}
	assert.True(t, found, "corrective message must state the tool is unavailable")
}

func TestEnabledConchConsumesAStepAndFeedsScoresBack(t *testing.T) {
	cfg := testConfig()
	cfg.EnableConch = true
	scorer := &stubScorer{}
	client := &scriptedClient{steps: []scriptedStep{
		cropStep(100, 100, 300, 300),
		conchStep("adenocarcinoma", "benign"),
		answerStep("adenocarcinoma"),
	}}
	nav := newNavigator(t, cfg, client, scorer)

	res, err := nav.Run(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, history.OutcomeSucceeded, res.Outcome)
	require.Len(t, res.Trajectory.Turns, 3)
	assert.Equal(t, schemas.ActionConchQuery, res.Trajectory.Turns[1].Action.Type)
	assert.Contains(t, res.Trajectory.Turns[1].Observation, "Hypothesis scores")
	assert.Equal(t, 1, scorer.calls)
	assert.Equal(t, []string{"adenocarcinoma", "benign"}, scorer.lastHyp)
}

func TestForceFinalAnswerSucceeds(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSteps = 2
	client := &scriptedClient{steps: []scriptedStep{
		cropStep(100, 100, 300, 300), // step 1
		cropStep(50, 50, 200, 200),   // step 2 (final): not an answer
		answerStep("forced answer"),  // force-answer round
	}}
	nav := newNavigator(t, cfg, client, nil)

	res, err := nav.Run(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, history.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "forced answer", res.Answer)
	// One crop turn plus the forced answer; the rejected final-step crop
	// never recorded a Turn.
	require.Len(t, res.Trajectory.Turns, 2)
	assert.Equal(t, schemas.ActionAnswer, res.Trajectory.Turns[1].Action.Type)
}

func TestForceFinalAnswerExhaustsAndFailsTerminal(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSteps = 1
	cfg.ForceAnswerRetries = 2
	client := &scriptedClient{steps: []scriptedStep{
		cropStep(100, 100, 300, 300), // final step already
		cropStep(50, 50, 200, 200),   // force round 1: still no answer
		cropStep(10, 10, 100, 100),   // force round 2: still no answer
	}}
	nav := newNavigator(t, cfg, client, nil)

	res, err := nav.Run(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, history.OutcomeFailedTerminal, res.Outcome)
	assert.Contains(t, res.Reason, "did not answer")
	// No answer is ever fabricated.
	assert.Empty(t, res.Answer)
	assert.Empty(t, res.Trajectory.Turns)
}

func TestFixedIterationsRejectEarlyAnswer(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSteps = 3
	cfg.MaxRetries = 5
	cfg.EnforceFixedIterations = true
	client := &scriptedClient{steps: []scriptedStep{
		answerStep("too early"),      // step 1: rejected
		cropStep(100, 100, 300, 300), // recovery: step 1 becomes a crop
		cropStep(50, 50, 200, 200),   // step 2
		answerStep("final verdict"),  // step 3 (final): accepted
	}}
	nav := newNavigator(t, cfg, client, nil)

	res, err := nav.Run(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, history.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "final verdict", res.Answer)
	require.Len(t, res.Trajectory.Turns, 3)
	assert.Equal(t, schemas.ActionCrop, res.Trajectory.Turns[0].Action.Type)
	assert.Equal(t, schemas.ActionCrop, res.Trajectory.Turns[1].Action.Type)
	assert.Equal(t, schemas.ActionAnswer, res.Trajectory.Turns[2].Action.Type)
}

func TestCancelledContextRecordsNoPartialTurn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &scriptedClient{steps: []scriptedStep{answerStep("never")}}
	nav := newNavigator(t, testConfig(), client, nil)

	res, err := nav.Run(ctx, "q")
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, history.OutcomeFailedTerminal, res.Outcome)
	assert.Empty(t, res.Trajectory.Turns)
}

func TestNewNavigatorRejectsBrokenConfig(t *testing.T) {
	client := &scriptedClient{}
	cases := []func(*Config){
		func(c *Config) { c.MaxSteps = 0 },
		func(c *Config) { c.MaxRetries = 0 },
		func(c *Config) { c.JPEGQuality = 0 },
		func(c *Config) { c.JPEGQuality = 101 },
		func(c *Config) { c.ForceAnswerRetries = 0 },
		func(c *Config) { c.BudgetUSD = -1 },
		func(c *Config) { c.EnableConch = true }, // no scorer wired
	}
	for _, mutate := range cases {
		cfg := testConfig()
		mutate(&cfg)
		_, err := NewNavigator(zap.NewNop(), cfg, client, testReader(), nil)
		assert.Error(t, err)
	}
}

func TestUnknownActionTypeTriggersRecovery(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		{resp: schemas.StepResponse{Reasoning: "confused", Action: schemas.StepAction{Type: "ZOOM"}}},
		answerStep("ok"),
	}}
	nav := newNavigator(t, testConfig(), client, nil)

	res, err := nav.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, history.OutcomeSucceeded, res.Outcome)
	require.Len(t, res.Trajectory.Turns, 1)
}
