// Package session provides Redis-backed persistence for the server-side
// session object referenced by the session cookie.
//
// # Storage format
//
// A session is stored under "<prefix>:<id>" as one version byte followed by a
// JSON document holding uid, userData, sessionData and timestamps. The id
// itself is the key and never appears in the blob.
//
// # Expiry
//
// Every record has an idle TTL renewed on read (sliding expiration) and an
// optional absolute lifetime after which Get deletes it.
//
// # What this package must NOT do
//
//   - Make authentication or authorization decisions.
//   - Touch cookies; the HTTP layer maps cookies to ids.
//   - Coordinate concurrent writers: Save is last-writer-wins.
package session
