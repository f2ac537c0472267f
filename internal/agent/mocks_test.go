// File: internal/agent/mocks_test.go
package agent

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/slidescope/slidescope/api/schemas"
	"github.com/slidescope/slidescope/internal/pyramid"
)

// scriptedStep is one pre-programmed reply of the scripted LLM client:
// either an error or a step response.
type scriptedStep struct {
	err  error
	resp schemas.StepResponse
	cost float64
}

// scriptedClient replays a fixed sequence of replies and records every
// message list it was called with.
type scriptedClient struct {
	mu    sync.Mutex
	steps []scriptedStep
	calls [][]schemas.Message
}

func (c *scriptedClient) GenerateStep(ctx context.Context, messages []schemas.Message) (schemas.StepResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := make([]schemas.Message, len(messages))
	copy(copied, messages)
	c.calls = append(c.calls, copied)

	if len(c.steps) == 0 {
		return schemas.StepResult{}, &schemas.ProviderError{Provider: "scripted", Err: errors.New("script exhausted")}
	}
	step := c.steps[0]
	c.steps = c.steps[1:]

	if step.err != nil {
		return schemas.StepResult{}, step.err
	}
	cost := step.cost
	if cost == 0 {
		cost = 0.01
	}
	return schemas.StepResult{
		Response: step.resp,
		Usage:    schemas.Usage{PromptTokens: 100, CompletionTokens: 50, CostUSD: cost},
	}, nil
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *scriptedClient) lastCall() []schemas.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return nil
	}
	return c.calls[len(c.calls)-1]
}

func cropStep(x, y, w, h int) scriptedStep {
	return scriptedStep{resp: schemas.StepResponse{
		Reasoning: "inspecting a region",
		Action:    schemas.StepAction{Type: schemas.ActionCrop, X: x, Y: y, Width: w, Height: h},
	}}
}

func answerStep(text string) scriptedStep {
	return scriptedStep{resp: schemas.StepResponse{
		Reasoning: "evidence is sufficient",
		Action:    schemas.StepAction{Type: schemas.ActionAnswer, Text: text},
	}}
}

func conchStep(hypotheses ...string) scriptedStep {
	return scriptedStep{resp: schemas.StepResponse{
		Reasoning: "scoring hypotheses",
		Action:    schemas.StepAction{Type: schemas.ActionConchQuery, Hypotheses: hypotheses},
	}}
}

func providerFailure() scriptedStep {
	return scriptedStep{err: &schemas.ProviderError{Provider: "scripted", Status: 503, Err: errors.New("upstream unavailable")}}
}

func parseFailure() scriptedStep {
	return scriptedStep{err: &schemas.ParseError{Raw: "not json", Err: errors.New("no JSON object found")}}
}

// stubScorer is a deterministic ConchScorer.
type stubScorer struct {
	mu      sync.Mutex
	calls   int
	lastHyp []string
	err     error
}

func (s *stubScorer) Score(ctx context.Context, hypotheses []string, region schemas.Region) (schemas.ConchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastHyp = hypotheses
	if s.err != nil {
		return schemas.ConchResult{}, s.err
	}
	scores := make(map[string]float64, len(hypotheses))
	for i, h := range hypotheses {
		scores[h] = 1.0 / float64(i+1)
	}
	return schemas.ConchResult{Scores: scores}, nil
}

// testReader builds a small in-memory pyramid: 2048x1024 level 0.
func testReader() schemas.SlideReader {
	img := image.NewRGBA(image.Rect(0, 0, 2048, 1024))
	for y := 0; y < 1024; y += 64 {
		for x := 0; x < 2048; x += 64 {
			img.Set(x, y, color.RGBA{R: 0xC0, G: 0x40, B: 0x80, A: 0xFF})
		}
	}
	return pyramid.NewMemoryPyramid(img)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxSteps = 5
	cfg.MaxRetries = 3
	cfg.ThumbnailSize = 256
	cfg.TargetLongSide = 256
	cfg.ForceAnswerRetries = 2
	return cfg
}
