package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const openTimeout = 10 * time.Second

// pragmas are applied by the driver to every new connection
var pragmas = [][2]string{
	{"_journal_mode", "WAL"},
	{"_synchronous", "NORMAL"},
	{"_cache_size", "-64000"},
	{"_temp_store", "MEMORY"},
	{"_foreign_keys", "ON"},
	{"_busy_timeout", "5000"},
}

// DB is the license database
type DB struct {
	*sql.DB
	path string
}

// New opens the license database at path, creating its directory when
// needed
func New(path string) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	return Open(ctx, path)
}

// Open is New with a caller supplied deadline for the first connection
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// one writer; license issuance relies on the unique indexes, not on
	// connection level locking
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &DB{DB: db, path: path}, nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Set(p[0], p[1])
	}
	return path + "?" + q.Encode()
}
