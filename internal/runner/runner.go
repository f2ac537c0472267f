// File: internal/runner/runner.go

// Package runner executes batches of navigation runs with bounded
// concurrency. Each item gets its own Navigator; the runner never shares
// mutable state between runs beyond the single LLM client.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/slidescope/slidescope/api/schemas"
	"github.com/slidescope/slidescope/internal/agent"
	"github.com/slidescope/slidescope/internal/config"
)

// Item is one unit of batch work: a question asked of one slide.
type Item struct {
	ID       string
	Question string
	Reader   schemas.SlideReader
}

// Result pairs an item with its run outcome. Err is set when the run could
// not complete at all (setup failure or cancellation); terminal navigation
// failures land in Run.Outcome instead.
type Result struct {
	Item           Item
	Run            *agent.RunResult
	TrajectoryPath string
	Err            error
}

// Runner fans a batch of items across a bounded pool of navigators.
type Runner struct {
	cfg      config.RunnerConfig
	agentCfg agent.Config
	llm      schemas.LLMClient
	conch    schemas.ConchScorer
	logger   *zap.Logger
}

// New wires a batch runner. The budget/concurrency combination is assumed
// to have passed config validation already.
func New(cfg config.RunnerConfig, agentCfg agent.Config, llm schemas.LLMClient, conch schemas.ConchScorer, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		agentCfg: agentCfg,
		llm:      llm,
		conch:    conch,
		logger:   logger.Named("runner"),
	}
}

// Run executes every item and returns one Result per item, in input order.
// Per-item failures are recorded, not fatal; the batch aborts early only on
// context cancellation.
func (r *Runner) Run(ctx context.Context, items []Item) ([]Result, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("batch contains no items")
	}
	if r.cfg.OutputDir != "" {
		if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	results := make([]Result, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i, item := range items {
		g.Go(func() error {
			results[i] = r.runOne(gctx, item)
			if results[i].Err != nil && gctx.Err() != nil {
				// Propagate cancellation so the group stops scheduling.
				return gctx.Err()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// runOne drives a single item through its own Navigator and persists the
// trajectory when an output directory is configured.
func (r *Runner) runOne(ctx context.Context, item Item) Result {
	res := Result{Item: item}

	nav, err := agent.NewNavigator(r.logger, r.agentCfg, r.llm, item.Reader, r.conch)
	if err != nil {
		res.Err = fmt.Errorf("failed to build navigator for item %s: %w", item.ID, err)
		return res
	}

	run, err := nav.Run(ctx, item.Question)
	res.Run = run
	if err != nil {
		res.Err = fmt.Errorf("run failed for item %s: %w", item.ID, err)
	}

	if run != nil && run.Trajectory != nil && r.cfg.OutputDir != "" {
		path := filepath.Join(r.cfg.OutputDir, fmt.Sprintf("%s.json", item.ID))
		if werr := run.Trajectory.WriteFile(path); werr != nil {
			r.logger.Error("Failed to persist trajectory",
				zap.String("item_id", item.ID), zap.Error(werr))
			if res.Err == nil {
				res.Err = werr
			}
		} else {
			res.TrajectoryPath = path
		}
	}

	if run != nil {
		r.logger.Info("Batch item finished",
			zap.String("item_id", item.ID),
			zap.String("outcome", string(run.Outcome)),
			zap.Float64("cost_usd", run.Trajectory.TotalUsage.CostUSD),
		)
	}
	return res
}
