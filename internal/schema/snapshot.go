// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package schema builds textual snapshots of the allow-listed database tables.
// The snapshot (columns, foreign keys, a bounded sample of rows) grounds the SQL
// generator so it stops guessing column names. Snapshots are cached process-wide
// and rebuilt only on explicit refresh.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Column describes one column of an allow-listed table.
type Column struct {
	Name     string
	DataType string
	Nullable bool
}

// ForeignKey describes a foreign-key edge from a column to a referenced table.column.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Table describes one allow-listed table with a bounded row sample.
type Table struct {
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey
	Samples     []map[string]any
}

// Snapshot is an immutable description of the allow-listed tables.
// It is built once and published as a whole; readers never observe a partial one.
type Snapshot struct {
	Tables  []Table
	BuiltAt time.Time
	text    string
}

// Text returns the rendered snapshot handed to the SQL generator as context.
func (s *Snapshot) Text() string { return s.text }

// Snapshotter introspects the allow-listed tables and caches the result.
type Snapshotter struct {
	pool       *pgxpool.Pool
	tables     []string
	sampleRows int

	// mu protects current; the snapshot is built outside the lock and
	// published under it (build-then-publish, never in-place mutation).
	mu      sync.RWMutex
	current *Snapshot

	build func(ctx context.Context) (*Snapshot, error)
}

// New creates a Snapshotter over the given allow-list.
// The allow-list is fixed; introspection never enumerates all tables.
func New(pool *pgxpool.Pool, tables []string, sampleRows int) *Snapshotter {
	if sampleRows <= 0 {
		sampleRows = 10
	}
	s := &Snapshotter{pool: pool, tables: tables, sampleRows: sampleRows}
	s.build = s.buildFromDB
	return s
}

// Snapshot returns the cached snapshot, building it on first use.
// With forceRefresh set, a new snapshot is built and published even if the
// schema content is unchanged.
func (s *Snapshotter) Snapshot(ctx context.Context, forceRefresh bool) (*Snapshot, error) {
	if !forceRefresh {
		s.mu.RLock()
		cur := s.current
		s.mu.RUnlock()
		if cur != nil {
			return cur, nil
		}
	}

	snap, err := s.build(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
	return snap, nil
}

// buildFromDB introspects information_schema for the allow-listed tables.
func (s *Snapshotter) buildFromDB(ctx context.Context) (*Snapshot, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = ANY($1)
		ORDER BY table_name`, s.tables)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	snap := &Snapshot{BuiltAt: time.Now()}
	for _, name := range names {
		table := Table{Name: name}
		if err := s.loadColumns(ctx, conn, &table); err != nil {
			return nil, fmt.Errorf("columns of %s: %w", name, err)
		}
		if err := s.loadForeignKeys(ctx, conn, &table); err != nil {
			return nil, fmt.Errorf("foreign keys of %s: %w", name, err)
		}
		if err := s.loadSamples(ctx, conn, &table); err != nil {
			return nil, fmt.Errorf("samples of %s: %w", name, err)
		}
		snap.Tables = append(snap.Tables, table)
	}
	snap.text = renderText(snap.Tables)
	return snap, nil
}

// loadColumns queries and populates column metadata for a table.
func (s *Snapshotter) loadColumns(ctx context.Context, conn *pgxpool.Conn, table *Table) error {
	rows, err := conn.Query(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, table.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var col Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.DataType, &nullable); err != nil {
			return err
		}
		col.Nullable = nullable == "YES"
		table.Columns = append(table.Columns, col)
	}
	return rows.Err()
}

// loadForeignKeys queries and populates foreign-key edges for a table.
func (s *Snapshotter) loadForeignKeys(ctx context.Context, conn *pgxpool.Conn, table *Table) error {
	rows, err := conn.Query(ctx, `
		SELECT
		  kcu.column_name,
		  ccu.table_name AS fk_table,
		  ccu.column_name AS fk_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name
		 AND ccu.table_schema = tc.table_schema
		WHERE tc.table_schema = 'public'
		  AND tc.table_name = $1
		  AND tc.constraint_type = 'FOREIGN KEY'`, table.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return err
		}
		table.ForeignKeys = append(table.ForeignKeys, fk)
	}
	return rows.Err()
}

// loadSamples reads a bounded sample of rows for grounding the generator.
func (s *Snapshotter) loadSamples(ctx context.Context, conn *pgxpool.Conn, table *Table) error {
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT * FROM %q LIMIT %d`, table.Name, s.sampleRows))
	if err != nil {
		return err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = string(fd.Name)
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return err
		}
		sample := make(map[string]any, len(cols))
		for i, col := range cols {
			sample[col] = jsonSafe(vals[i])
		}
		table.Samples = append(table.Samples, sample)
	}
	return rows.Err()
}

// jsonSafe converts pgx-returned values into JSON-serializable ones.
func jsonSafe(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuidString(val)
	case []byte:
		if len(val) == 16 {
			var b [16]byte
			copy(b[:], val)
			return uuidString(b)
		}
		return fmt.Sprintf(`\x%x`, val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return v
	}
}

// uuidString formats 16 raw bytes as xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx.
func uuidString(v [16]byte) string {
	return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		v[0], v[1], v[2], v[3], v[4], v[5], v[6], v[7],
		v[8], v[9], v[10], v[11], v[12], v[13], v[14], v[15])
}

// renderText renders tables into the textual form given to the SQL generator:
//
//	TABLE students
//	  COLUMNS: id integer, name text NULL, ...
//	  FKs: bootcamp_id -> bootcamps.id
//	  SAMPLES: [{...}, ...]
func renderText(tables []Table) string {
	parts := make([]string, 0, len(tables))
	for _, t := range tables {
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			col := c.Name + " " + c.DataType
			if c.Nullable {
				col += " NULL"
			}
			cols = append(cols, col)
		}

		fks := make([]string, 0, len(t.ForeignKeys))
		for _, fk := range t.ForeignKeys {
			fks = append(fks, fmt.Sprintf("%s -> %s.%s", fk.Column, fk.RefTable, fk.RefColumn))
		}
		fkStr := strings.Join(fks, "; ")
		if fkStr == "" {
			fkStr = "None"
		}

		samples, err := json.Marshal(t.Samples)
		if err != nil {
			samples = []byte("[]")
		}

		parts = append(parts, fmt.Sprintf("TABLE %s\n  COLUMNS: %s\n  FKs: %s\n  SAMPLES: %s",
			t.Name, strings.Join(cols, ", "), fkStr, samples))
	}
	return strings.Join(parts, "\n\n")
}
