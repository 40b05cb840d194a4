package db

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the schema version this binary writes
const SchemaVersion = 1

// RunMigrations executes all database migrations
func RunMigrations(db *DB) error {
	var tableExists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}

	if !tableExists {
		if err := initializeSchema(db); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		return nil
	}

	var currentVersion int
	err = db.QueryRow(`
		SELECT MAX(version) FROM schema_version
	`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if currentVersion < 1 {
		return fmt.Errorf("invalid schema version: %d", currentVersion)
	}
	if currentVersion > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, SchemaVersion)
	}

	return nil
}

// initializeSchema creates all tables for a new database
func initializeSchema(db *DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statements := []string{
		schemaVersionTable,
		usersTable, usersIndexes,
		productsTable, productsIndexes,
		licensesTable, licensesIndexes,
		licenseLogsTable, licenseLogsIndexes,
		auditLogsTable, auditLogsIndexes,
	}
	for _, stmt := range statements {
		if err := execSQL(tx, stmt); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, SchemaVersion); err != nil {
		return err
	}

	return tx.Commit()
}

// execSQL executes a SQL statement
func execSQL(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}

// Schema definitions
const (
	schemaVersionTable = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	usersTable = `
CREATE TABLE users (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    username          TEXT NOT NULL UNIQUE,
    password_hash     TEXT NOT NULL,
    totp_secret       TEXT NOT NULL DEFAULT '',
    email             TEXT NOT NULL DEFAULT '',
    enabled           INTEGER NOT NULL DEFAULT 1,
    max_licenses      INTEGER NOT NULL DEFAULT 0,
    created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	usersIndexes = `
CREATE INDEX idx_users_enabled ON users(enabled)`

	productsTable = `
CREATE TABLE products (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    name            TEXT NOT NULL,
    product_code    TEXT NOT NULL UNIQUE,
    description     TEXT NOT NULL DEFAULT '',
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	productsIndexes = `
CREATE INDEX idx_products_name ON products(name)`

	// Record columns hold the exact text that was signed. Dates are TEXT so
	// they are never reformatted by the driver.
	licensesTable = `
CREATE TABLE licenses (
    id                    INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id               INTEGER NOT NULL,
    product_id            INTEGER NOT NULL,
    license_key           TEXT NOT NULL UNIQUE,
    customer_name         TEXT NOT NULL,
    username              TEXT NOT NULL,
    product_name          TEXT NOT NULL,
    product_code          TEXT NOT NULL,
    license_type          TEXT NOT NULL,
    status                TEXT NOT NULL,
    start_date            TEXT NOT NULL,
    expiry_date           TEXT NOT NULL,
    email                 TEXT NOT NULL,
    issued_at             TEXT NOT NULL,
    signature             TEXT NOT NULL CHECK (signature <> ''),
    hardware_fingerprint  TEXT NOT NULL,
    max_installations     INTEGER NOT NULL DEFAULT 1,
    current_installations INTEGER NOT NULL DEFAULT 1,
    is_revoked            INTEGER NOT NULL DEFAULT 0,
    revoked_at            DATETIME,
    valid_till            DATETIME NOT NULL,
    created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
)`

	licensesIndexes = `
CREATE UNIQUE INDEX idx_licenses_live_user_product ON licenses(user_id, product_id) WHERE is_revoked = 0;
CREATE INDEX idx_licenses_user_id ON licenses(user_id);
CREATE INDEX idx_licenses_valid_till ON licenses(valid_till)`

	licenseLogsTable = `
CREATE TABLE license_logs (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    license_id           INTEGER,
    license_key          TEXT NOT NULL,
    verdict              TEXT NOT NULL,
    source_ip            TEXT NOT NULL,
    user_agent           TEXT,
    hardware_fingerprint TEXT,
    note                 TEXT,
    timestamp            DATETIME NOT NULL,

    FOREIGN KEY (license_id) REFERENCES licenses(id) ON DELETE SET NULL
)`

	licenseLogsIndexes = `
CREATE INDEX idx_license_logs_license_id ON license_logs(license_id);
CREATE INDEX idx_license_logs_key ON license_logs(license_key);
CREATE INDEX idx_license_logs_verdict ON license_logs(verdict);
CREATE INDEX idx_license_logs_timestamp ON license_logs(timestamp)`

	auditLogsTable = `
CREATE TABLE audit_logs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    action      TEXT NOT NULL,
    username    TEXT,
    client_ip   TEXT NOT NULL,
    user_agent  TEXT,
    success     INTEGER NOT NULL,
    error_msg   TEXT,
    details     TEXT
)`

	auditLogsIndexes = `
CREATE INDEX idx_audit_timestamp ON audit_logs(timestamp);
CREATE INDEX idx_audit_action ON audit_logs(action);
CREATE INDEX idx_audit_username ON audit_logs(username);
CREATE INDEX idx_audit_success ON audit_logs(success)`
)
