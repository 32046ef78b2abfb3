// Package history persists a ledger of served transfers in SQLite.
//
// The server opens a Store at startup, records each accepted request with
// Begin, and closes it with Finish once the final message has been sent. Rows
// hold metadata only (requester, destination, filename, priority, outcome,
// chunk and byte counts); message content never touches the database.
// Transfers still marked active when a server starts belonged to a process
// that died mid-transfer and are marked aborted by Recover.
package history
