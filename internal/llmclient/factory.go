// File: internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/slidescope/slidescope/api/schemas"
	"github.com/slidescope/slidescope/internal/config"
)

// New constructs the LLM client for the configured provider.
func New(cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	case config.ProviderScripted:
		return NewScriptedClient(cfg.ScriptPath, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
