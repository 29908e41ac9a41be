package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/speakmcp"
	projectConfigDir = ".speakmcp"
	configFileName   = "config.yaml"
)

// LoadConfig loads the speakmcp configuration by layering default, user, and project settings.
func LoadConfig() (Config, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	return expandConfig(config), nil
}

// LoadConfigFromPath loads the defaults overlaid with a single explicit file.
func LoadConfigFromPath(path string) (Config, error) {
	fileConfig, err := loadConfigFromFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	return expandConfig(mergeConfigs(GetDefaultConfig(), fileConfig)), nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a Config from a YAML (or JSON) file.
func loadConfigFromFile(filePath string) (Config, error) {
	var config Config
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Servers are
// replaced whole by id.
func mergeConfigs(base, overlay Config) Config {
	merged := base

	servers := make(map[string]ServerConfig, len(base.MCPServers)+len(overlay.MCPServers))
	for id, srv := range base.MCPServers {
		servers[id] = srv
	}
	for id, srv := range overlay.MCPServers {
		servers[id] = srv
	}
	merged.MCPServers = servers

	if overlay.Shutdown.Timeout > 0 {
		merged.Shutdown.Timeout = overlay.Shutdown.Timeout
	}
	if overlay.Shutdown.ProcessGracePeriod > 0 {
		merged.Shutdown.ProcessGracePeriod = overlay.Shutdown.ProcessGracePeriod
	}
	if overlay.Shutdown.ForceGracePeriod > 0 {
		merged.Shutdown.ForceGracePeriod = overlay.Shutdown.ForceGracePeriod
	}

	if overlay.LocalTools.BaseDir != "" {
		merged.LocalTools.BaseDir = overlay.LocalTools.BaseDir
	}

	if overlay.History.Enabled != nil {
		merged.History.Enabled = overlay.History.Enabled
	}
	if overlay.History.Path != "" {
		merged.History.Path = overlay.History.Path
	}

	return merged
}

// expandConfig resolves "~" in paths and ${VAR} references in server
// environments.
func expandConfig(c Config) Config {
	c.LocalTools.BaseDir = ExpandPath(c.LocalTools.BaseDir)
	c.History.Path = ExpandPath(c.History.Path)
	for id, srv := range c.MCPServers {
		if len(srv.Env) > 0 {
			env := make(map[string]string, len(srv.Env))
			for k, v := range srv.Env {
				env[k] = ExpandEnv(v)
			}
			srv.Env = env
		}
		c.MCPServers[id] = srv
	}
	return c
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := osUserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// ExpandEnv expands ${VAR} and ${VAR:-default} references.
func ExpandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
