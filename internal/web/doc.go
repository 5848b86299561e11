// Package web serves the cortado HTTP API and the embedded demo page.
//
// Every route is JSON over stdlib net/http with Go 1.22 method patterns.
// Errors use one envelope, {"error": <kind>, "message": <text>}, with the
// ceremony error kinds mapped onto status codes (validation/state/
// verification 400, conflict 409, not_found 404) plus "unauthorized" 401
// and "internal" 500.
//
// The browser session cookie (cortado_session) is the only client state.
// Ceremony begin handlers mint the cookie on first contact so the challenge
// has a session record to live on; requireSession gates the authenticated
// routes on the same cookie. Service tokens for non-browser callers are
// minted at POST /api/session/token when a signing secret is configured.
package web
