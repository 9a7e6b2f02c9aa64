package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// appName names the per-user and per-project directories.
const appName = "collab"

// Paths contains the standard per-user paths.
type Paths struct {
	Config string // ~/.config/collab
	State  string // ~/.local/state/collab
}

// GetPaths returns the standard per-user paths.
func GetPaths() *Paths {
	return &Paths{
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), appName),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), appName),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Config, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// LogPath returns the path of the log file used when logs are not printed.
func (p *Paths) LogPath() string {
	return filepath.Join(p.State, "collab.log")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "collab.json")
}

// ProjectConfigDir returns the project's .collab directory.
func ProjectConfigDir(directory string) string {
	return filepath.Join(directory, "."+appName)
}

// ProjectConfigPath returns the path to the project config file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(ProjectConfigDir(directory), "collab.json")
}
