// Package auth provides bearer-token authentication for cortado's API.
//
// # Service Tokens
//
// Signed-in users can mint short-lived JWT service tokens for non-browser
// clients (scripts, CLI tools) that cannot hold a session cookie. Tokens
// are signed with HS256 using the configured token secret and carry the
// user ID in the "sub" claim plus the username in "preferred_username".
//
//	verifier := auth.NewJWTVerifier(secret)
//	token, err := verifier.Generate(auth.Identity{UserID: id, Username: name}, time.Hour)
//	identity, err := verifier.Verify(token)
//
// Verification is purely local: any service holding the shared secret can
// validate a token without calling back to cortado.
//
// # HTTP Middleware
//
// Middleware rejects requests without a valid "Authorization: Bearer"
// header; OptionalMiddleware lets anonymous requests through and attaches
// an Identity only when a valid token is present. Handlers read the
// caller's identity with FromContext.
package auth
