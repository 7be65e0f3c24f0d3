package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sql.DB connection and provides access to stores
type DB struct {
	*sql.DB
	SupplierOrders *SupplierOrderStore
	MailEvents     *MailEventStore
}

// Open opens a database connection and initializes stores
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable foreign key constraints in SQLite
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	database := &DB{
		DB:             db,
		SupplierOrders: NewSupplierOrderStore(db),
		MailEvents:     NewMailEventStore(db),
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database, nil
}

// migrate creates the database schema
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS supplier_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		retail_order_id INTEGER NOT NULL,
		supplier TEXT NOT NULL,
		supplier_order_number TEXT NOT NULL DEFAULT '',
		carrier TEXT NOT NULL DEFAULT '',
		tracking_number TEXT NOT NULL DEFAULT '',
		tracking_url TEXT NOT NULL DEFAULT '',
		shipment_reference TEXT NOT NULL DEFAULT '',
		supplier_shipped_at DATETIME,
		email_message_id TEXT NOT NULL DEFAULT '',
		email_subject TEXT NOT NULL DEFAULT '',
		email_from TEXT NOT NULL DEFAULT '',
		email_received_at DATETIME,
		status TEXT NOT NULL DEFAULT 'to_order',
		ordered_at DATETIME,
		received_at DATETIME,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS supplier_mail_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		supplier TEXT NOT NULL,
		message_id TEXT NOT NULL UNIQUE,
		received_at DATETIME NOT NULL,
		from_address TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		order_number TEXT NOT NULL DEFAULT '',
		carrier TEXT NOT NULL DEFAULT '',
		tracking_number TEXT NOT NULL DEFAULT '',
		preview TEXT NOT NULL DEFAULT '',
		supplier_order_id INTEGER,
		retail_order_id INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (supplier_order_id) REFERENCES supplier_orders(id)
	);

	CREATE INDEX IF NOT EXISTS idx_supplier_orders_status ON supplier_orders(status);
	CREATE INDEX IF NOT EXISTS idx_supplier_orders_supplier_number ON supplier_orders(supplier, supplier_order_number);
	CREATE INDEX IF NOT EXISTS idx_supplier_orders_retail ON supplier_orders(retail_order_id);
	CREATE INDEX IF NOT EXISTS idx_mail_events_supplier ON supplier_mail_events(supplier, received_at);
	CREATE INDEX IF NOT EXISTS idx_mail_events_unmatched ON supplier_mail_events(supplier_order_id, received_at);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// HasRequiredTables verifies the reconciliation tables exist. Callers use
// this as a fail-fast precondition before opening any mailbox connection.
func (db *DB) HasRequiredTables() error {
	for _, table := range []string{"supplier_orders", "supplier_mail_events"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("required table %s is missing", table)
		}
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
	}
	return nil
}

// IsHealthy checks if the database connection is healthy
func (db *DB) IsHealthy() error {
	return db.Ping()
}
