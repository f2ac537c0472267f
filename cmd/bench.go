// File: cmd/bench.go
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/slidescope/slidescope/internal/llmclient"
	"github.com/slidescope/slidescope/internal/observability"
	"github.com/slidescope/slidescope/internal/runner"
)

// manifestEntry is one line of work in a benchmark manifest.
type manifestEntry struct {
	ID       string `json:"id"`
	Slide    string `json:"slide"`
	Question string `json:"question"`
}

var benchCmd = &cobra.Command{
	Use:   "bench [manifest.json]",
	Short: "Run a batch of slide questions from a manifest file.",
	Long: `Reads a JSON manifest (an array of {id, slide, question} entries),
runs each through its own navigation loop with bounded concurrency, and
writes one trajectory file per entry to the configured output directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()

	entries, err := loadManifest(args[0])
	if err != nil {
		return err
	}

	items := make([]runner.Item, 0, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			e.ID = fmt.Sprintf("item-%03d", i)
		}
		reader, rerr := loadSlide(e.Slide)
		if rerr != nil {
			return fmt.Errorf("manifest entry %s: %w", e.ID, rerr)
		}
		items = append(items, runner.Item{ID: e.ID, Question: e.Question, Reader: reader})
	}

	llm, err := llmclient.New(appConfig.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to build LLM client: %w", err)
	}

	r := runner.New(appConfig.Runner, agentConfigFrom(appConfig.Navigator), llm, nil, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := r.Run(ctx, items)
	if err != nil {
		return err
	}

	var failed int
	for _, res := range results {
		switch {
		case res.Err != nil:
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "%-20s ERROR    %v\n", res.Item.ID, res.Err)
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-18s %s\n",
				res.Item.ID, res.Run.Outcome, res.Run.Answer)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d/%d runs completed without error\n", len(results)-failed, len(results))
	return nil
}

func loadManifest(path string) ([]manifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var entries []manifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("manifest %s contains no entries", path)
	}
	for i, e := range entries {
		if e.Slide == "" || e.Question == "" {
			return nil, fmt.Errorf("manifest entry %d requires both slide and question", i)
		}
	}
	return entries, nil
}
