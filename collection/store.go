// Package collection is a SQLite document store whose reads are reactive:
// fetching inside a computation reruns it when the collection changes.
package collection

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AnatoleLucet/sigbridge"
)

//go:embed schema.sql
var schemaSQL string

var (
	ErrNotFound = errors.New("collection: document not found")
	ErrFrozen   = errors.New("collection: document is frozen")
)

// DB holds the collections of one SQLite database.
type DB struct {
	db          *sql.DB
	collections map[string]*Collection
}

// Open creates or opens the database at path. ":memory:" keeps it in memory.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// one connection: an in-memory database lives and dies with it
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &DB{db: db, collections: make(map[string]*Collection)}, nil
}

func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Collection returns the collection called name. Collections are created on
// first use; every call for a name returns the same collection.
func (d *DB) Collection(name string) *Collection {
	if c, ok := d.collections[name]; ok {
		return c
	}

	c := &Collection{db: d.db, name: name, dep: sigbridge.NewDependency()}
	d.collections[name] = c
	return c
}
