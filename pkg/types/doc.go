/*
Package types defines driftshare's domain model: the entities the store
persists and every other package operates on.

# Entities

	Folder           a locally indexed tree, identified once, never mutated
	File             one version of one path within a folder
	Segment          one ciphertext unit, one per redundancy copy
	PackedSegment    one article body holding several small files
	Share            a published reference to a folder at a version
	MemberCommitment one user's grant on a member-gated share
	Article          local projection of a posted message
	Job              a background unit leased by an uploader/retriever worker

Ownership is one-directional: Folder owns Files, File owns Segments, Share
references Folder and a list of index-article message ids without owning
them. Commitments reference Share and a user id; there is no reverse
pointer from member back to share, only a query.

All identifiers are opaque strings. Folder, File and Segment ids come from
the caller's id generator (UUIDs from github.com/google/uuid in the CLI);
share ids are base32 of a SHA-256 over random bytes and a timestamp, and
subjects are a base32 HMAC of the segment id — see pkg/crypto.
*/
package types
