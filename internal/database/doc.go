// Package database provides the PostgreSQL connection pool used by the
// subscription archive.
//
// The archive table is created on startup if missing:
//
//	relay_messages(id uuid primary key, received_at bigint, body jsonb)
package database
