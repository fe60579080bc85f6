// Package database provides SQLite connectivity for blktagd.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations read from an fs.FS (normally the embedded
//     migrations package)
//   - Connection lifecycle and health checks
//
// All queries use parameterised statements and the database file is
// created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Each migration is a pair of files named
// YYYYMMDD_HHMMSS_description.up.sql and .down.sql.
package database
