// Package session verifies the access tokens presented by websocket clients.
//
// Two token formats are supported: PASETO v4.public (Ed25519, claim "uid") and
// JWT HS256 (shared secret, claim "id") as issued by the marketplace login endpoint.
// Verification is pure: it never consults external state.
package session
