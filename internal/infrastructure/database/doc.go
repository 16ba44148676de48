// Package database provides the SQLite connection for the Z-Wave frame
// journal.
//
// The database runs in WAL mode so the HTTP API can read recent frames
// while the bridge records new ones. The schema is managed by versioned
// migrations embedded from the top-level migrations package:
//
//	db, err := database.Open(database.FromConfig(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.{up,down}.sql.
// Each migration is applied in its own transaction.
package database
