package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/opencode-ai/collab/internal/logging"
	"github.com/opencode-ai/collab/pkg/types"
)

// preferredProviders orders providers when the configuration names no model.
var preferredProviders = []string{"anthropic", "openai", "ark"}

// Registry manages all available providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    *types.Config
}

// NewRegistry creates a new provider registry.
func NewRegistry(config *types.Config) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		config:    config,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns all available providers sorted by ID.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool {
		return providers[i].ID() < providers[j].ID()
	})
	return providers
}

// Default returns the provider the configured model names, or the first
// available provider in preference order.
func (r *Registry) Default() (Provider, error) {
	if r.config != nil && r.config.Model != "" {
		providerID, _ := ParseModelString(r.config.Model)
		if providerID != "" {
			return r.Get(providerID)
		}
	}

	for _, id := range preferredProviders {
		if p, err := r.Get(id); err == nil {
			return p, nil
		}
	}
	providers := r.List()
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers available")
	}
	return providers[0], nil
}

// ParseModelString parses "provider/model" format.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// InitializeProviders creates and registers all providers from config. A
// provider without an API key is skipped; one that fails to initialize is
// logged and skipped.
func InitializeProviders(ctx context.Context, config *types.Config) (*Registry, error) {
	registry := NewRegistry(config)
	if config == nil {
		return registry, nil
	}

	selectedProvider, selectedModel := ParseModelString(config.Model)
	modelFor := func(id string, cfg types.ProviderConfig) string {
		if id == selectedProvider && selectedModel != "" {
			return selectedModel
		}
		return cfg.Model
	}

	for _, id := range preferredProviders {
		cfg, ok := config.Provider[id]
		if !ok || cfg.APIKey == "" || cfg.Disable {
			continue
		}

		var (
			p   Provider
			err error
		)
		switch id {
		case "anthropic":
			p, err = NewAnthropicProvider(ctx, &AnthropicConfig{
				APIKey:    cfg.APIKey,
				BaseURL:   cfg.BaseURL,
				Model:     modelFor(id, cfg),
				MaxTokens: cfg.MaxTokens,
			})
		case "openai":
			p, err = NewOpenAIProvider(ctx, &OpenAIConfig{
				APIKey:    cfg.APIKey,
				BaseURL:   cfg.BaseURL,
				Model:     modelFor(id, cfg),
				MaxTokens: cfg.MaxTokens,
			})
		case "ark":
			p, err = NewArkProvider(ctx, &ArkConfig{
				APIKey:    cfg.APIKey,
				BaseURL:   cfg.BaseURL,
				Model:     modelFor(id, cfg),
				MaxTokens: cfg.MaxTokens,
			})
		}
		if err != nil {
			logging.Warn().Err(err).Str("provider", id).Msg("failed to initialize provider")
			continue
		}
		registry.Register(p)
	}

	return registry, nil
}
