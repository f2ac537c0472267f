// -- cmd/root.go --
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/slidescope/slidescope/internal/agent"
	"github.com/slidescope/slidescope/internal/config"
	"github.com/slidescope/slidescope/internal/observability"
)

var (
	cfgFile string
	// appConfig is populated by PersistentPreRunE before any subcommand runs.
	appConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "slidescope",
	Short: "Slidescope answers questions about gigapixel slides by iterative navigation.",
	// Version is dynamically set at build time. See cmd/version.go.
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// This function runs before any command, setting up config and logging.
		if err := initializeConfig(); err != nil {
			return err
		}

		cfg, err := config.NewConfigFromViper(viper.GetViper())
		if err != nil {
			// Initialize a fallback logger so the failure is still visible.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "slidescope"})
			return err
		}
		appConfig = cfg

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Info("Starting slidescope", zap.String("version", Version))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SLIDESCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}

// agentConfigFrom maps the external navigator configuration onto the agent's
// immutable per-run config.
func agentConfigFrom(n config.NavigatorConfig) agent.Config {
	return agent.Config{
		MaxSteps:               n.MaxSteps,
		MaxRetries:             n.MaxRetries,
		BudgetUSD:              n.BudgetUSD,
		ThumbnailSize:          n.ThumbnailSize,
		TargetLongSide:         n.TargetLongSide,
		JPEGQuality:            n.JPEGQuality,
		LevelBias:              n.LevelBias,
		MaxRegionPixels:        n.MaxRegionPixels,
		ImageWindow:            n.ImageWindow,
		ForceAnswerRetries:     n.ForceAnswerRetries,
		EnforceFixedIterations: n.EnforceFixedIterations,
		EnableConch:            n.EnableConch,
	}
}
