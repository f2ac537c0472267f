// File: cmd/ask.go
package cmd

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slidescope/slidescope/api/schemas"
	"github.com/slidescope/slidescope/internal/agent"
	"github.com/slidescope/slidescope/internal/llmclient"
	"github.com/slidescope/slidescope/internal/observability"
	"github.com/slidescope/slidescope/internal/pyramid"
)

var (
	askQuestion   string
	askTrajectory string
)

var askCmd = &cobra.Command{
	Use:   "ask [slide-image]",
	Short: "Ask one question about a single slide image.",
	Long: `Loads a raster slide image (PNG or JPEG), builds an in-memory
resolution pyramid over it, and runs the navigation loop until the model
answers or a budget is exhausted.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askQuestion, "question", "q", "", "question to answer about the slide (required)")
	askCmd.Flags().StringVarP(&askTrajectory, "trajectory", "t", "", "write the run trajectory to this JSON file")
	_ = askCmd.MarkFlagRequired("question")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()

	reader, err := loadSlide(args[0])
	if err != nil {
		return err
	}

	llm, err := llmclient.New(appConfig.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to build LLM client: %w", err)
	}

	nav, err := agent.NewNavigator(logger, agentConfigFrom(appConfig.Navigator), llm, reader, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := nav.Run(ctx, askQuestion)
	if result != nil && result.Trajectory != nil && askTrajectory != "" {
		if werr := result.Trajectory.WriteFile(askTrajectory); werr != nil {
			logger.Error("Failed to write trajectory", zap.Error(werr))
		}
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Outcome: %s\n", result.Outcome)
	if result.Answer != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Answer:  %s\n", result.Answer)
	}
	if result.Reason != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Reason:  %s\n", result.Reason)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Steps:   %d, Cost: $%.4f\n",
		len(result.Trajectory.Turns), result.Trajectory.TotalUsage.CostUSD)
	return nil
}

// loadSlide decodes a raster image and wraps it in an in-memory pyramid.
// Proper WSI formats would slot in here behind the same reader interface.
func loadSlide(path string) (schemas.SlideReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open slide image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode slide image %s: %w", path, err)
	}
	observability.GetLogger().Info("Slide loaded",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
	)
	return pyramid.NewMemoryPyramid(img), nil
}
