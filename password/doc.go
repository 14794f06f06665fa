// Package password implements the password authenticator: argon2id hashing
// and verification.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// # Missing credentials
//
// [Argon2.Verify] accepts an empty hash and still performs a full argon2
// derivation against an internal dummy hash, returning false. Callers pass
// the empty string when the username does not resolve so that both failure
// paths cost the same.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other sessionflow package.
//   - Log plaintext passwords.
package password
