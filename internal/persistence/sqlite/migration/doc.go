// Package migration applies versioned SQL schema changes to the SQLite store.
//
// Migration files are read from an fs.FS (normally an embedded directory) and
// follow the naming convention {version}_{description}.sql, for example
// "001_initial_schema.sql". Applied versions are tracked in a schema_migrations
// table so each file runs exactly once, inside its own transaction.
//
// Statements are split on semicolons except inside string literals and
// CREATE TRIGGER ... BEGIN ... END bodies.
//
// Example usage:
//
//	manager := NewMigrationManager(NewFileScanner(migrations), NewSQLiteExecutor(db), "migrations", logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
