// Package config handles configuration loading for flowstarter-console.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from FLOWSTARTER_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/flowstarter/console.yaml
//  3. ~/.config/flowstarter/console.yaml
//
// Files ending in .toml are decoded as TOML, everything else as YAML. A .env
// file beside the config file is loaded before parsing.
//
// # Environment Variables
//
// Values can reference environment variables:
//
//	upstream:
//	  admin_key: "${FLOWSTARTER_ADMIN_KEY}"
//
// After decoding, FLOWSTARTER_* variables (for example
// FLOWSTARTER_UPSTREAM_BASE_URL or FLOWSTARTER_LOG_LEVEL) override the file.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//
//	database:
//	  path: "~/.local/share/flowstarter/console.db"
//
//	upstream:
//	  base_url: "https://billing.example.com"
//	  admin_key: "${FLOWSTARTER_ADMIN_KEY}"
//	  app_id: "main"
//	  timeout: "30s"        # empty means no client timeout
//
//	flowstarter:
//	  api_url: "http://localhost:8000"
//
//	console:
//	  base_url: "https://console.example.com"
//	  session_secret: "${FLOWSTARTER_SESSION_SECRET}"
//	  session_duration: "168h"
//	  locale: "en"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
//	tailscale:
//	  enabled: false
//	  hostname: "flowstarter-console"
//	  auth_key: "${TS_AUTHKEY}"
//	  funnel: false
package config
