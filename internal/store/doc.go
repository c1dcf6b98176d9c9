// Package store provides persistence for meetline.
//
// The Store interface covers three concerns:
//
//   - Users: registered accounts with bcrypt password hashes
//   - Messages: two-party messages with a read timestamp and independent
//     per-party soft-delete flags
//   - Conversation groups: which live connections are currently viewing
//     which two-party conversation
//
// Conversation groups are persisted so that reconnecting clients rejoin the
// same group across restarts, but the joined connections themselves are
// per-process: ClearGroupConnections is called at startup to drop rows left
// behind by a previous run.
//
// The read-receipt rule lives here rather than in the chat layer:
// CreateMessage checks group membership and stamps the read timestamp inside
// the same transaction as the insert, so the decision cannot race a
// concurrent join or leave.
//
// SQLiteStore is the production implementation (modernc.org/sqlite, WAL
// mode, schema created on open). MockStore is an in-memory implementation
// for tests.
package store
