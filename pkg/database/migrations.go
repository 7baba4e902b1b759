package database

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Migration is one versioned schema change
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrator applies pending migrations in version order
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

// migrations is the embedded, ordered schema history
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_receipts",
		SQL: `
			CREATE TABLE IF NOT EXISTS receipts (
				id TEXT PRIMARY KEY,
				owner_id TEXT NOT NULL,
				vendor_name TEXT NOT NULL DEFAULT '',
				business_id TEXT NOT NULL DEFAULT '',
				date DATETIME,
				total_amount REAL NOT NULL DEFAULT 0,
				vat_amount REAL NOT NULL DEFAULT 0,
				pre_vat_amount REAL NOT NULL DEFAULT 0,
				invoice_number TEXT NOT NULL DEFAULT '',
				notes TEXT NOT NULL DEFAULT '',
				category_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				is_duplicate INTEGER NOT NULL DEFAULT 0,
				duplicate_of_id TEXT REFERENCES receipts(id),
				confidence TEXT NOT NULL DEFAULT '',
				vat_validated INTEGER NOT NULL DEFAULT 0,
				image_ref TEXT NOT NULL DEFAULT '',
				version INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				approved_at DATETIME
			);
			CREATE INDEX IF NOT EXISTS idx_receipts_owner ON receipts(owner_id);
			CREATE INDEX IF NOT EXISTS idx_receipts_owner_status ON receipts(owner_id, status);
		`,
	},
	{
		Version: 2,
		Name:    "create_receipt_edits",
		SQL: `
			CREATE TABLE IF NOT EXISTS receipt_edits (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				receipt_id TEXT NOT NULL REFERENCES receipts(id),
				field TEXT NOT NULL,
				old_value TEXT NOT NULL DEFAULT '',
				new_value TEXT NOT NULL DEFAULT '',
				edited_by TEXT NOT NULL DEFAULT '',
				edited_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_receipt_edits_receipt ON receipt_edits(receipt_id);
		`,
	},
}

func (m *Migrator) createMigrationsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
	_, err := m.db.Exec(query)
	return err
}

func (m *Migrator) appliedMigrations() (map[int]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// RunMigrations applies every pending migration inside a transaction
func (m *Migrator) RunMigrations() error {
	if err := m.createMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := m.appliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		err := m.db.WithTransaction(func(tx *sql.Tx) error {
			if _, err := tx.Exec(migration.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(
				"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
				migration.Version, migration.Name,
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		m.logger.Info("Applied migration",
			zap.Int("version", migration.Version),
			zap.String("name", migration.Name))
	}

	return nil
}
