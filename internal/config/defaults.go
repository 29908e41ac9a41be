package config

import "time"

const (
	DefaultShutdownTimeout    = 5 * time.Second
	DefaultProcessGracePeriod = 2 * time.Second
	DefaultForceGracePeriod   = 500 * time.Millisecond
	DefaultServerTimeout      = 10 * time.Second
)

// GetDefaultConfig returns the minimal default configuration: no tool
// servers, history off, default shutdown timings.
func GetDefaultConfig() Config {
	return Config{
		MCPServers: map[string]ServerConfig{},
		Shutdown: ShutdownConfig{
			Timeout:            DefaultShutdownTimeout,
			ProcessGracePeriod: DefaultProcessGracePeriod,
			ForceGracePeriod:   DefaultForceGracePeriod,
		},
	}
}
