/*
Package crypto implements the symmetric primitives the rest of the
pipeline builds on: AES-256-GCM sealing (nonce-prepended, following the
teacher's secrets-manager convention), key wrap/unwrap, scrypt/PBKDF2
passphrase derivation, per-folder Ed25519 signing, SHA-256 content hashing,
and opaque identifier generation — including the share-id and subject
derivations this package's callers rely on to be byte-exact.

Nothing here reads from or writes to the store. Apart from the generators
that draw on crypto/rand (salts, nonces, master keys, ids; NewShareID also
reads the clock), every function is a pure transformation over bytes so it
can be tested without fixtures.
*/
package crypto
