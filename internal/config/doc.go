// Package config provides configuration management for speakmcp.
//
// Configuration is loaded from multiple YAML files and merged in order, with
// later sources overriding earlier ones:
//
//  1. Default configuration (no tool servers, default shutdown timings)
//  2. User configuration (~/.config/speakmcp/config.yaml)
//  3. Project configuration (./.speakmcp/config.yaml)
//
// LoadConfigFromPath skips the layering and reads one explicit file on top of
// the defaults. JSON files are accepted as well since JSON is valid YAML.
//
// # Configuration Structure
//
//	mcpServers:
//	  files:
//	    command: npx
//	    args: ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
//	    timeout: 15s          # or timeoutMs: 15000
//	    env:
//	      API_KEY: "${MY_API_KEY}"
//	      WITH_DEFAULT: "${MISSING:-default_value}"
//	  weather:
//	    command: weather-mcp
//	    disabled: true
//
//	shutdown:
//	  timeout: 5s
//	  processGracePeriod: 2s
//	  forceGracePeriod: 500ms
//
//	localTools:
//	  baseDir: ~/Documents
//
//	history:
//	  enabled: true
//	  path: ~/.config/speakmcp/history.db
//
// Server entries are replaced whole by id when layers are merged. A server
// entry whose args is not a list still loads; it is rejected by
// ServerConfig.Validate so that a single broken entry does not prevent the
// remaining servers from starting.
package config
