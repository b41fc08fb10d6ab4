// Package database provides SQLite connectivity for hellod.
//
// This package manages:
//   - The connection, with WAL mode and a busy timeout
//   - Schema migrations read from an fs.FS
//   - Lifecycle and health checks
//
// The database holds the audit trail of register writes. The file is
// restricted to 0600 and all queries use parameterised statements.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive-only: new columns must be NULLABLE or have a
// DEFAULT, and every .up.sql ships with a .down.sql.
package database
