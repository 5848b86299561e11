// Package config handles configuration loading for cortado.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CORTADO_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/cortado/cortado.yaml
//  3. ~/.config/cortado/cortado.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token_secret: "${CORTADO_TOKEN_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  ttl: "168h"
//	auth:
//	  token_ttl: "15m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "localhost:8080"
//	  base_url: "https://auth.example.com"  # external origin for passkeys
//
// Relying party (optional; derived from base_url when omitted):
//
//	relying_party:
//	  display_name: "Cortado"
//	  id: "auth.example.com"
//	  origins:
//	    - "https://auth.example.com"
//
// Database:
//
//	database:
//	  path: "/var/lib/cortado/cortado.db"
//
// Sessions:
//
//	sessions:
//	  backend: "memory"   # memory, redis
//	  ttl: "168h"
//	  redis:
//	    addr: "localhost:6379"
//
// Service tokens:
//
//	auth:
//	  token_secret: "${CORTADO_TOKEN_SECRET}"
//	  token_ttl: "15m"
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "cortado"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//	  funnel: false
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - A listen address (or tailscale hostname) is configured
//   - Database path is set
//   - Session backend names a known implementation, with a redis address
//     when the redis backend is selected
//   - Duration format validity
package config
