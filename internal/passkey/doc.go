// Package passkey runs WebAuthn ceremonies for cortado.
//
// The Engine drives three ceremonies, each a begin/finish pair:
//
//   - Registration: creates an account and its first credential
//   - Login: user-identified (allow-list) or discoverable
//   - AddCredential: a further passkey for an authenticated account
//
// Cross-request ceremony state (the challenge, and during registration the
// pending identity) lives in the caller's session record, never in engine
// memory, so any server instance can finish a ceremony another began. A
// begin overwrites whatever ceremony the session already carried, and a
// finish consumes the challenge no matter how it ends.
//
// Failures are classified by the Error type. Verification failures
// deliberately share one generic message; the failing check is only
// logged server-side.
package passkey
