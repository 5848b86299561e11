// ABOUTME: Package documentation for server
// ABOUTME: Explains component wiring, listener modes, and shutdown ordering

// Package server orchestrates the cortado service components.
//
// New wires the pieces together in dependency order: the SQLite store, the
// session backend (memory or redis), the passkey ceremony engine for the
// configured relying party, and the web routes on top of all three. Run
// binds a listener and blocks until the context is canceled or the HTTP
// server fails.
//
// # Listeners
//
// By default the server listens on a plain TCP address (server.http_addr).
// With tailscale.enabled the listener comes from an embedded tsnet node
// instead: port 80 on the tailnet, port 443 with auto-provisioned certs
// when tailscale.https is set, or a public Funnel listener when
// tailscale.funnel is set. The externally visible URL feeds relying-party
// derivation, so Tailscale deployments should set server.base_url (or
// CORTADO_BASE_URL) to the full tailnet URL.
//
// # Shutdown
//
// Run performs a graceful shutdown with a 5 second drain: the HTTP server
// stops accepting and drains in-flight requests, then the tsnet node, the
// session store, and the SQLite store are closed in that order.
package server
