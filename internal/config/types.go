package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level speakmcp configuration.
type Config struct {
	MCPServers map[string]ServerConfig `yaml:"mcpServers,omitempty"`
	Shutdown   ShutdownConfig          `yaml:"shutdown,omitempty"`
	LocalTools LocalToolsConfig        `yaml:"localTools,omitempty"`
	History    HistoryConfig           `yaml:"history,omitempty"`
}

// ShutdownConfig holds the timing knobs of the lifecycle coordinator.
type ShutdownConfig struct {
	Timeout            time.Duration `yaml:"timeout,omitempty"`
	ProcessGracePeriod time.Duration `yaml:"processGracePeriod,omitempty"`
	ForceGracePeriod   time.Duration `yaml:"forceGracePeriod,omitempty"`
}

// LocalToolsConfig configures the built-in file tools.
type LocalToolsConfig struct {
	// BaseDir is where relative paths passed to the file tools resolve.
	BaseDir string `yaml:"baseDir,omitempty"`
}

// HistoryConfig configures the tool-call history store.
type HistoryConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// IsEnabled reports whether history recording was switched on.
func (h HistoryConfig) IsEnabled() bool {
	return h.Enabled != nil && *h.Enabled
}

// ServerConfig describes how to launch one MCP tool server. The server id is
// the key it is stored under in Config.MCPServers.
type ServerConfig struct {
	Command  string            `yaml:"command"`
	Args     []string          `yaml:"args,omitempty"`
	Disabled bool              `yaml:"disabled,omitempty"`
	Timeout  time.Duration     `yaml:"timeout,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`

	// argsMalformed is set when args was present but not a sequence.
	argsMalformed bool
}

// rawServerConfig mirrors ServerConfig with the loosely typed fields left as
// nodes so their shape can be checked.
type rawServerConfig struct {
	Command   string            `yaml:"command"`
	Args      yaml.Node         `yaml:"args"`
	Disabled  bool              `yaml:"disabled"`
	Timeout   yaml.Node         `yaml:"timeout"`
	TimeoutMs int64             `yaml:"timeoutMs"`
	Env       map[string]string `yaml:"env"`
}

// UnmarshalYAML decodes a server entry. A scalar args value is accepted here
// and reported by Validate, so one bad entry does not break the whole file.
func (s *ServerConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw rawServerConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}

	out := ServerConfig{
		Command:  raw.Command,
		Disabled: raw.Disabled,
		Env:      raw.Env,
	}

	switch raw.Args.Kind {
	case 0:
		// absent
	case yaml.SequenceNode:
		if err := raw.Args.Decode(&out.Args); err != nil {
			out.argsMalformed = true
			out.Args = nil
		}
	case yaml.ScalarNode:
		if raw.Args.Tag != "!!null" {
			out.argsMalformed = true
		}
	default:
		out.argsMalformed = true
	}

	timeout, err := decodeTimeout(&raw.Timeout)
	if err != nil {
		return err
	}
	if timeout == 0 && raw.TimeoutMs > 0 {
		timeout = time.Duration(raw.TimeoutMs) * time.Millisecond
	}
	out.Timeout = timeout

	*s = out
	return nil
}

// decodeTimeout accepts either a Go duration string ("15s") or a bare number
// of milliseconds.
func decodeTimeout(node *yaml.Node) (time.Duration, error) {
	if node.Kind == 0 || node.Tag == "!!null" {
		return 0, nil
	}
	if node.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("timeout must be a duration, got %s", nodeKindName(node.Kind))
	}
	if node.Tag == "!!int" {
		var ms int64
		if err := node.Decode(&ms); err != nil {
			return 0, err
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(node.Value))
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", node.Value, err)
	}
	return d, nil
}

func nodeKindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return "scalar"
	}
}

// Validate checks the invariants a server entry needs before it can be
// launched.
func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.Command) == "" {
		return ErrCommandRequired
	}
	if s.argsMalformed {
		return ErrArgsNotArray
	}
	return nil
}

// EffectiveTimeout returns the configured timeout, or def when none is set.
func (s ServerConfig) EffectiveTimeout(def time.Duration) time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return def
}

// ParseServerConfig decodes a single server entry from YAML or JSON.
func ParseServerConfig(data []byte) (ServerConfig, error) {
	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("failed to parse server config: %w", err)
	}
	return cfg, nil
}
