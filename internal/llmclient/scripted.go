// File: internal/llmclient/scripted.go
package llmclient

import (
	"context"
	"fmt"
	"os"
	"sync"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/slidescope/slidescope/api/schemas"
)

// ScriptedClient replays step responses from a JSON file in order. It backs
// offline runs and dry-run demos where no model endpoint is available.
type ScriptedClient struct {
	mu     sync.Mutex
	steps  []schemas.StepResponse
	cursor int
	logger *zap.Logger
}

// NewScriptedClient loads the script file: a JSON array of step responses.
func NewScriptedClient(path string, logger *zap.Logger) (*ScriptedClient, error) {
	if path == "" {
		return nil, fmt.Errorf("scripted provider requires llm.script_path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}

	var steps []schemas.StepResponse
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("failed to parse script file %s: %w", path, err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("script file %s contains no steps", path)
	}
	for i := range steps {
		if err := steps[i].Validate(); err != nil {
			return nil, fmt.Errorf("script step %d is invalid: %w", i, err)
		}
	}

	return &ScriptedClient{
		steps:  steps,
		logger: logger.Named("llm_client.scripted"),
	}, nil
}

// GenerateStep returns the next scripted response. An exhausted script is a
// provider failure, so the navigation loop applies its usual retry policy.
func (c *ScriptedClient) GenerateStep(ctx context.Context, messages []schemas.Message) (schemas.StepResult, error) {
	if err := ctx.Err(); err != nil {
		return schemas.StepResult{}, &schemas.ProviderError{Provider: "scripted", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cursor >= len(c.steps) {
		return schemas.StepResult{}, &schemas.ProviderError{Provider: "scripted",
			Err: fmt.Errorf("script exhausted after %d steps", len(c.steps))}
	}

	resp := c.steps[c.cursor]
	c.cursor++

	c.logger.Debug("Replaying scripted step",
		zap.Int("step", c.cursor),
		zap.String("action", string(resp.Action.Type)),
		zap.Int("messages", len(messages)),
	)

	return schemas.StepResult{Response: resp}, nil
}
