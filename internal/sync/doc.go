// Package sync reconciles the local novel-project store against the remote
// sync API so one user's work is available across devices.
//
// One invocation of Engine.Run is one linear pass:
//
//  1. Precondition: the caller must hold an access token and the account
//     must pass a fresh server-side approval check; either failure aborts
//     the run with a single reported error.
//  2. Deletion propagation: every unsynced tombstone is deleted remotely
//     (404 counts as success), marked synced, and old tombstones purged.
//  3. Metadata fetch: the remote's lightweight project list.
//  4. Local -> remote: projects absent remotely are uploaded; for projects
//     present on both sides the strictly higher version wins, with the
//     updatedAt/lastModifiedAt wall clocks as tiebreaker. Equal on both
//     means no transfer.
//  5. Remote -> local: remote projects absent locally are downloaded unless
//     a tombstone marks them locally deleted, which prevents resurrecting a
//     project the user removed before this run.
//
// Conflict resolution is last-writer-wins; there is no merge. Per-item
// failures are collected into the Result without stopping sibling work, so a
// run reports everything it managed to do alongside everything that failed.
package sync
