package provider

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/collab/pkg/types"
)

type mockProvider struct {
	id    string
	model string
}

func (m *mockProvider) ID() string                            { return m.id }
func (m *mockProvider) Name() string                          { return m.id }
func (m *mockProvider) Model() string                         { return m.model }
func (m *mockProvider) ChatModel() model.ToolCallingChatModel { return nil }
func (m *mockProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	return nil, nil
}

func TestParseModelString(t *testing.T) {
	tests := []struct {
		in           string
		wantProvider string
		wantModel    string
	}{
		{"anthropic/claude-sonnet-4-20250514", "anthropic", "claude-sonnet-4-20250514"},
		{"openai/gpt-4o", "openai", "gpt-4o"},
		{"openrouter/meta/llama-3", "openrouter", "meta/llama-3"},
		{"gpt-4o", "", "gpt-4o"},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, m := ParseModelString(tt.in)
			assert.Equal(t, tt.wantProvider, p)
			assert.Equal(t, tt.wantModel, m)
		})
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(&mockProvider{id: "test"})

	got, err := registry.Get("test")
	require.NoError(t, err)
	assert.Equal(t, "test", got.ID())

	_, err = registry.Get("nonexistent")
	assert.Error(t, err)
}

func TestRegistry_ListSorted(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(&mockProvider{id: "p3"})
	registry.Register(&mockProvider{id: "p1"})
	registry.Register(&mockProvider{id: "p2"})

	var ids []string
	for _, p := range registry.List() {
		ids = append(ids, p.ID())
	}
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids)
}

func TestRegistry_Default(t *testing.T) {
	t.Run("configured model", func(t *testing.T) {
		registry := NewRegistry(&types.Config{Model: "openai/gpt-4o"})
		registry.Register(&mockProvider{id: "anthropic"})
		registry.Register(&mockProvider{id: "openai"})

		p, err := registry.Default()
		require.NoError(t, err)
		assert.Equal(t, "openai", p.ID())
	})

	t.Run("configured provider missing", func(t *testing.T) {
		registry := NewRegistry(&types.Config{Model: "ark/endpoint"})
		registry.Register(&mockProvider{id: "anthropic"})

		_, err := registry.Default()
		assert.Error(t, err)
	})

	t.Run("preference order", func(t *testing.T) {
		registry := NewRegistry(&types.Config{})
		registry.Register(&mockProvider{id: "ark"})
		registry.Register(&mockProvider{id: "openai"})

		p, err := registry.Default()
		require.NoError(t, err)
		assert.Equal(t, "openai", p.ID())
	})

	t.Run("unknown providers only", func(t *testing.T) {
		registry := NewRegistry(nil)
		registry.Register(&mockProvider{id: "zeta"})
		registry.Register(&mockProvider{id: "local"})

		p, err := registry.Default()
		require.NoError(t, err)
		assert.Equal(t, "local", p.ID())
	})

	t.Run("empty", func(t *testing.T) {
		_, err := NewRegistry(nil).Default()
		assert.Error(t, err)
	})
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			registry.Register(&mockProvider{id: fmt.Sprintf("p%d", i)})
		}(i)
		go func() {
			defer wg.Done()
			_ = registry.List()
		}()
	}
	wg.Wait()
	assert.Len(t, registry.List(), 20)
}

func TestInitializeProviders(t *testing.T) {
	t.Run("no config", func(t *testing.T) {
		registry, err := InitializeProviders(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, registry.List())
	})

	t.Run("keys select providers", func(t *testing.T) {
		cfg := &types.Config{
			Model: "openai/gpt-4o-mini",
			Provider: map[string]types.ProviderConfig{
				"anthropic": {APIKey: "sk-ant-test"},
				"openai":    {APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1"},
				"ark":       {APIKey: "", Model: "endpoint"},
				"disabled":  {APIKey: "x", Disable: true},
			},
		}
		registry, err := InitializeProviders(context.Background(), cfg)
		require.NoError(t, err)

		var ids []string
		for _, p := range registry.List() {
			ids = append(ids, p.ID())
		}
		assert.Equal(t, []string{"anthropic", "openai"}, ids)

		p, err := registry.Default()
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", p.Model())
		assert.NotNil(t, p.ChatModel())

		a, err := registry.Get("anthropic")
		require.NoError(t, err)
		assert.Equal(t, DefaultAnthropicModel, a.Model())
	})
}

func TestProviders_RequireKeys(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("ARK_MODEL_ID", "")
	ctx := context.Background()

	_, err := NewAnthropicProvider(ctx, &AnthropicConfig{})
	assert.Error(t, err)
	_, err = NewOpenAIProvider(ctx, &OpenAIConfig{})
	assert.Error(t, err)
	_, err = NewArkProvider(ctx, &ArkConfig{})
	assert.Error(t, err)
	_, err = NewArkProvider(ctx, &ArkConfig{APIKey: "key"})
	assert.ErrorContains(t, err, "ARK_MODEL_ID")
}

func TestAnthropicProvider_CustomID(t *testing.T) {
	p, err := NewAnthropicProvider(context.Background(), &AnthropicConfig{
		ID:     "claude",
		APIKey: "sk-ant-test",
		Model:  "claude-3-5-haiku-20241022",
	})
	require.NoError(t, err)
	assert.Equal(t, "claude", p.ID())
	assert.Equal(t, "Anthropic", p.Name())
	assert.Equal(t, "claude-3-5-haiku-20241022", p.Model())
}
