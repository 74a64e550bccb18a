// Package password hashes and verifies passwords for the local identity
// provider with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.NeedsRehash] reports hashes produced with weaker parameters so the
// caller can re-hash after the next successful sign-in.
//
// # What this package must NOT do
//
//   - Enforce password policy. Length rules live in the Engine config.
//   - Store passwords or hashes.
//   - Log plaintext passwords.
package password
