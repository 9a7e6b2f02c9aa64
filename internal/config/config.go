package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/opencode-ai/collab/internal/logging"
	"github.com/opencode-ai/collab/pkg/types"
)

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/collab/)
// 2. Project config (collab.json[c] in directory)
// 3. Project config (.collab/collab.json[c], .collab/collab.yaml)
// 4. Persona files (.collab/agents/*.yaml)
// 5. COLLAB_CONFIG file
// 6. COLLAB_CONFIG_CONTENT inline JSON
// 7. Environment variables
//
// Missing files are skipped. A file that exists but does not parse is an
// error.
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
		Personas: make(map[string]types.PersonaConfig),
	}

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) error {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		if loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, config, baseDir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		loaded[absPath] = true
		logging.Debug().Str("path", path).Msg("loaded config file")
		return nil
	}

	var paths [][2]string

	// 1. Global config
	globalPath := GetPaths().Config
	paths = append(paths,
		[2]string{filepath.Join(globalPath, "collab.json"), globalPath},
		[2]string{filepath.Join(globalPath, "collab.jsonc"), globalPath},
	)

	// 2-3. Project config
	if directory != "" {
		projectConfigDir := ProjectConfigDir(directory)
		paths = append(paths,
			[2]string{filepath.Join(directory, "collab.json"), directory},
			[2]string{filepath.Join(directory, "collab.jsonc"), directory},
			[2]string{filepath.Join(projectConfigDir, "collab.json"), projectConfigDir},
			[2]string{filepath.Join(projectConfigDir, "collab.jsonc"), projectConfigDir},
			[2]string{filepath.Join(projectConfigDir, "collab.yaml"), projectConfigDir},
			[2]string{filepath.Join(projectConfigDir, "collab.yml"), projectConfigDir},
		)
	}
	for _, p := range paths {
		if err := loadOnce(p[0], p[1]); err != nil {
			return nil, err
		}
	}

	// 4. Persona files
	if directory != "" {
		personas, err := DiscoverPersonas(ProjectConfigDir(directory))
		if err != nil {
			return nil, err
		}
		for name, p := range personas {
			config.Personas[name] = p
		}
	}

	// 5. COLLAB_CONFIG file override
	if configPath := os.Getenv("COLLAB_CONFIG"); configPath != "" {
		if err := loadOnce(configPath, filepath.Dir(configPath)); err != nil {
			return nil, err
		}
	}

	// 6. COLLAB_CONFIG_CONTENT inline JSON
	if configContent := os.Getenv("COLLAB_CONFIG_CONTENT"); configContent != "" {
		var inlineConfig types.Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(configContent)), &inlineConfig); err != nil {
			return nil, fmt.Errorf("parse COLLAB_CONFIG_CONTENT: %w", err)
		}
		mergeConfig(config, &inlineConfig)
	}

	// 7. Environment variables (highest priority)
	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	// Normalize provider config (merge Options into direct fields)
	normalizeProviderConfig(config)

	return config, nil
}

// LoadDotEnv loads .env files from directory into the process environment
// without overriding variables that are already set.
func LoadDotEnv(directory string) {
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(directory, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("failed to load env file")
		}
	}
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fileConfig types.Config
	if isYAML(path) {
		data = interpolate(data, baseDir, false)
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return err
		}
	} else {
		// Strip JSONC comments using tidwall/jsonc
		data = interpolate(jsonc.ToJSON(data), baseDir, true)
		if err := json.Unmarshal(data, &fileConfig); err != nil {
			return err
		}
	}

	mergeConfig(config, &fileConfig)
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// interpolate processes {env:VAR} and {file:path} placeholders. File
// contents are escaped when the target is a JSON document.
func interpolate(data []byte, baseDir string, escapeJSON bool) []byte {
	str := string(data)

	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := resolvePath(filePattern.FindStringSubmatch(match)[1], baseDir)

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}
		if !escapeJSON {
			return strings.TrimRight(string(content), "\n")
		}

		// Escape for JSON string
		escaped := strings.ReplaceAll(string(content), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")
		return escaped
	})

	return []byte(str)
}

// resolvePath expands ~/ and makes relative paths relative to baseDir.
func resolvePath(path, baseDir string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(os.Getenv("HOME"), path[2:])
	}
	if !filepath.IsAbs(path) {
		return filepath.Join(baseDir, path)
	}
	return path
}

// normalizeProviderConfig merges Options fields into direct fields for compatibility.
func normalizeProviderConfig(config *types.Config) {
	for name, provider := range config.Provider {
		if provider.Options != nil {
			// Options take precedence over direct fields
			if provider.Options.APIKey != "" {
				provider.APIKey = provider.Options.APIKey
			}
			if provider.Options.BaseURL != "" {
				provider.BaseURL = provider.Options.BaseURL
			}
		}
		config.Provider[name] = provider
	}
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.Orchestrator != "" {
		target.Orchestrator = source.Orchestrator
	}
	if source.DefaultSubagents != nil {
		target.DefaultSubagents = source.DefaultSubagents
	}
	if source.MaxSteps != 0 {
		target.MaxSteps = source.MaxSteps
	}

	// Merge instructions
	if len(source.Instructions) > 0 {
		target.Instructions = append(target.Instructions, source.Instructions...)
	}

	// Merge providers
	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	// Merge personas
	if source.Personas != nil {
		if target.Personas == nil {
			target.Personas = make(map[string]types.PersonaConfig)
		}
		for k, v := range source.Personas {
			target.Personas[k] = v
		}
	}

	if source.Policy != nil {
		target.Policy = mergePolicy(target.Policy, source.Policy)
	}
	if source.Timeouts != nil {
		target.Timeouts = source.Timeouts
	}
	if source.Limits != nil {
		target.Limits = source.Limits
	}
	if source.Server != nil {
		target.Server = source.Server
	}
	if source.Shell != nil {
		target.Shell = source.Shell
	}
}

// mergePolicy replaces target's lists with the ones source sets.
func mergePolicy(target, source *types.PolicyConfig) *types.PolicyConfig {
	if target == nil {
		merged := *source
		return &merged
	}
	merged := *target
	if source.ToolAllowlist != nil {
		merged.ToolAllowlist = source.ToolAllowlist
	}
	if source.ToolDenylist != nil {
		merged.ToolDenylist = source.ToolDenylist
	}
	if source.ShellCommandAllowlist != nil {
		merged.ShellCommandAllowlist = source.ShellCommandAllowlist
	}
	if source.ShellCommandDenylist != nil {
		merged.ShellCommandDenylist = source.ShellCommandDenylist
	}
	return &merged
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) error {
	// Provider API keys
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"ark":       "ARK_API_KEY",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if config.Provider == nil {
				config.Provider = make(map[string]types.ProviderConfig)
			}
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
		}
	}

	if model := os.Getenv("COLLAB_MODEL"); model != "" {
		config.Model = model
	}
	if level := os.Getenv("COLLAB_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	if v := os.Getenv("COLLAB_DEFAULT_SUBAGENTS"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("COLLAB_DEFAULT_SUBAGENTS: %w", err)
		}
		config.DefaultSubagents = &enabled
	}

	// Policy override (JSON)
	if policyJSON := os.Getenv("COLLAB_POLICY"); policyJSON != "" {
		var policy types.PolicyConfig
		if err := json.Unmarshal([]byte(policyJSON), &policy); err != nil {
			return fmt.Errorf("COLLAB_POLICY: %w", err)
		}
		config.Policy = mergePolicy(config.Policy, &policy)
	}
	return nil
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
