// Package database provides the SQLite store backing the daemon's
// persisted state, currently the lifetime totals and the
// schema_migrations ledger.
//
// SQLite runs in WAL mode with the pool pinned to a single connection:
// the daemon is the only writer, and WAL lets readers proceed while it
// writes. Schema changes ship as embedded .up.sql/.down.sql pairs that
// the migrations package registers at init; Migrate applies pending
// ones in version order, each in its own transaction.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
