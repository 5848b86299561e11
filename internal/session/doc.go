// Package session stores browser session records for cortado.
//
// One record carries two disjoint groups of fields. The ceremony group
// holds the in-flight WebAuthn challenge (and, for registration, the
// pending identity) and lives only between a begin and its finish. The
// identity group is the authenticated user id and username, set together
// when a ceremony succeeds and cleared by logout or expiry. Putting a record replaces it
// wholesale, which is what gives ceremonies their latest-begin-wins and
// consumed-on-finish behavior.
//
// Two backends implement Store: an in-memory map with a TTL sweeper for
// single-process deployments, and a Redis backend that leans on key
// expiry for multi-process ones. Records cross the Redis boundary as
// JSON, so everything in them must serialize.
package session
