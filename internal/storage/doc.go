// Package storage owns the SQLite database shared by the corpus, subset, and
// artifact stores.
//
// It opens the database in WAL mode with immediate write transactions so
// concurrent claimers serialize on the write lock, retries SQLITE_BUSY with
// bounded backoff, creates the embedded schema, applies migrations, and runs
// diagnostic health checks. Higher-level packages never open connections
// themselves; they receive a *DB.
package storage
