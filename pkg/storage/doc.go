/*
Package storage implements the Store interface behind two tagged engines:

  - BoltStore: a single bbolt file per process, one bucket per entity,
    JSON-encoded values. Used by standalone ("embedded") deployments.
  - RaftStore: a Raft-replicated FSM (github.com/hashicorp/raft +
    github.com/hashicorp/raft-boltdb) wrapping a BoltStore, used by
    "server" deployments that need a consistent replicated log across
    multiple processes.

Both satisfy the same Store interface; callers pick an engine at startup
and never branch on which one they hold. WithTx provides the
savepoint-style nesting required by callers that compose multi-entity
writes (see boltdb.go's update/view helpers for how nesting is resolved
against bbolt's single in-flight write transaction).
*/
package storage
