// Package migration applies versioned SQL migrations to SQLite databases.
//
// Migration files follow {version}_{description}.sql (for example
// "001_initial_schema.sql") and are read from any fs.FS, so the schema can be
// embedded in the binary. Applied versions and their checksums are tracked in
// the schema_migrations table; each migration runs in its own transaction.
//
//	db, err := migration.Open(migration.DefaultSQLiteConfig("booking.db"))
//	manager := migration.NewManager(migration.NewScanner(files, "migrations"), migration.NewExecutor(db), logger)
//	if err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
