package ai

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/config"
)

// NewClientFromConfig builds a provider client from engine
// configuration. Returns the Client interface to enable dependency
// injection of mocks.
func NewClientFromConfig(cfg *config.AIConfig, logger *zap.Logger) (Client, error) {
	providerCfg := &Config{
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		client, err := NewOpenAIClient(providerCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	case "anthropic":
		client, err := NewAnthropicClient(providerCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}
