// Package treedb is a small library of named trees persisted in SQLite.
//
// Each node is stored as its packed 24-bit word, so a saved tree is exactly
// what a host would stream into the store's write port.
package treedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"dtree/proto/tree"
)

var (
	// ErrNotFound is returned when no tree has the requested name.
	ErrNotFound = errors.New("tree not found")

	// ErrInvalidName is returned for an empty or oversized tree name.
	ErrInvalidName = errors.New("invalid tree name")
)

// MaxNameLen bounds tree names.
const MaxNameLen = 128

const schema = `
CREATE TABLE IF NOT EXISTS trees (
	name       TEXT PRIMARY KEY,
	node_count INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS tree_nodes (
	tree_name TEXT NOT NULL,
	addr      INTEGER NOT NULL,
	word      INTEGER NOT NULL,
	PRIMARY KEY (tree_name, addr)
);
`

// Info describes a saved tree.
type Info struct {
	Name      string    `json:"name"`
	Nodes     int       `json:"nodes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DB is a handle to the tree library.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the library at path. ":memory:" opens a private
// in-memory library.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tree database: %w", err)
	}
	// An in-memory database lives on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db: db, now: time.Now}, nil
}

// Close releases the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func validName(name string) error {
	if name == "" || len(name) > MaxNameLen {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Save stores nodes under name, replacing any tree already saved there.
func (d *DB) Save(ctx context.Context, name string, nodes []tree.Node) error {
	if err := validName(name); err != nil {
		return err
	}
	if len(nodes) == 0 || len(nodes) > tree.Capacity {
		return fmt.Errorf("tree %q has %d nodes, want 1..%d", name, len(nodes), tree.Capacity)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := d.now().UnixNano()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trees (name, node_count, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET node_count = excluded.node_count, updated_at = excluded.updated_at`,
		name, len(nodes), now, now); err != nil {
		return fmt.Errorf("failed to save tree %q: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tree_nodes WHERE tree_name = ?`, name); err != nil {
		return fmt.Errorf("failed to clear tree %q: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tree_nodes (tree_name, addr, word) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer stmt.Close()

	for addr, n := range nodes {
		if _, err := stmt.ExecContext(ctx, name, addr, int64(n.Pack())); err != nil {
			return fmt.Errorf("failed to save node %d of %q: %w", addr, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tree %q: %w", name, err)
	}
	return nil
}

// Load returns the tree saved under name.
func (d *DB) Load(ctx context.Context, name string) ([]tree.Node, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT node_count FROM trees WHERE name = ?`, name).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tree %q: %w", name, err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT addr, word FROM tree_nodes WHERE tree_name = ? ORDER BY addr`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes of %q: %w", name, err)
	}
	defer rows.Close()

	nodes := make([]tree.Node, count)
	for rows.Next() {
		var addr int
		var word int64
		if err := rows.Scan(&addr, &word); err != nil {
			return nil, fmt.Errorf("failed to scan node of %q: %w", name, err)
		}
		if addr < 0 || addr >= count {
			return nil, fmt.Errorf("tree %q: stored addr %d outside 0..%d", name, addr, count-1)
		}
		nodes[addr] = tree.Unpack(uint32(word))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read nodes of %q: %w", name, err)
	}
	return nodes, nil
}

// List returns every saved tree, ordered by name.
func (d *DB) List(ctx context.Context) ([]Info, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name, node_count, created_at, updated_at FROM trees ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trees: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var info Info
		var created, updated int64
		if err := rows.Scan(&info.Name, &info.Nodes, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan tree row: %w", err)
		}
		info.CreatedAt = time.Unix(0, created).UTC()
		info.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list trees: %w", err)
	}
	return out, nil
}

// Delete removes the tree saved under name.
func (d *DB) Delete(ctx context.Context, name string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM trees WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete tree %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to delete tree %q: %w", name, err)
	} else if n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tree_nodes WHERE tree_name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete nodes of %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of %q: %w", name, err)
	}
	return nil
}
