package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/defsdb/pkg/core"
	"github.com/leapstack-labs/defsdb/pkg/defsdb"
)

const indexColumns = `id, source, created_at, modules, classes, toplevel, method_bodies, method_definitions, required_libs`

// timeFormat is fixed width so that created_at sorts chronologically as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SaveIndex stores every module, method definition and required library of
// db as a new index and returns it. The write is a single transaction.
func (s *SQLiteStore) SaveIndex(ctx context.Context, db *defsdb.Database, source string) (*Index, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	idx := &Index{
		ID:        generateID(),
		Source:    source,
		CreatedAt: time.Now().UTC(),
		Stats:     db.Stats(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	st := idx.Stats
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO indexes (`+indexColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idx.ID, idx.Source, idx.CreatedAt.Format(timeFormat),
		st.Modules, st.Classes, st.TopLevel, st.MethodBodies, st.MethodDefinitions, st.RequiredLibs,
	); err != nil {
		return nil, fmt.Errorf("failed to insert index: %w", err)
	}

	pos := 0
	for m := range db.EachModule() {
		var superclass *string
		if sc, ok := m.Superclass(); ok {
			name := sc.Name()
			superclass = &name
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO modules (index_id, module_id, position, name, kind, superclass) VALUES (?, ?, ?, ?, ?, ?)`,
			idx.ID, string(m.ID()), pos, m.Name(), m.Kind().String(), superclass,
		); err != nil {
			return nil, fmt.Errorf("failed to insert module %s: %w", m.Name(), err)
		}
		pos++
	}

	pos = 0
	for def := range db.EachMethod() {
		mod, ok := defsdb.AsModule(def.DefinedIn())
		if !ok {
			continue
		}
		body := def.Body()
		var location *string
		if loc, ok := body.Location(); ok {
			l := loc.String()
			location = &l
		}
		owner := ""
		if o := body.Owner(); o != nil {
			owner = o.Name()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO methods (index_id, position, module_id, module, name, visibility, singleton, owner, location)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			idx.ID, pos, string(mod.ID()), mod.Name(), def.Name(), def.Visibility().String(),
			def.IsSingletonMethod(), owner, location,
		); err != nil {
			return nil, fmt.Errorf("failed to insert method %s: %w", def, err)
		}
		pos++
	}

	for i, lib := range db.RequiredLibs() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO required_libs (index_id, position, path) VALUES (?, ?, ?)`,
			idx.ID, i, lib,
		); err != nil {
			return nil, fmt.Errorf("failed to insert required lib: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit index: %w", err)
	}

	s.logger.Info("saved index",
		slog.String("id", idx.ID),
		slog.String("source", source),
		slog.Int("modules", st.Modules+st.Classes),
		slog.Int("methods", pos))
	return idx, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIndex(row rowScanner) (*Index, error) {
	var (
		idx       Index
		createdAt string
	)
	err := row.Scan(&idx.ID, &idx.Source, &createdAt,
		&idx.Stats.Modules, &idx.Stats.Classes, &idx.Stats.TopLevel,
		&idx.Stats.MethodBodies, &idx.Stats.MethodDefinitions, &idx.Stats.RequiredLibs)
	if err != nil {
		return nil, err
	}
	if idx.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	return &idx, nil
}

// GetIndex retrieves an index by ID. An unknown id returns an error
// wrapping ErrIndexNotFound.
func (s *SQLiteStore) GetIndex(ctx context.Context, id string) (*Index, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+indexColumns+` FROM indexes WHERE id = ?`, id)
	idx, err := scanIndex(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get index: %w", err)
	}
	return idx, nil
}

// ListIndexes returns all indexes, newest first.
func (s *SQLiteStore) ListIndexes(ctx context.Context) ([]*Index, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+indexColumns+` FROM indexes ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Index
	for rows.Next() {
		idx, err := scanIndex(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

// DeleteIndex removes an index and all of its rows.
func (s *SQLiteStore) DeleteIndex(ctx context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM indexes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, id)
	}
	return nil
}

// FindModules returns the modules of an index whose name matches pattern,
// a glob such as "Net::*". An empty pattern matches every module. Rows
// come back in load order.
func (s *SQLiteStore) FindModules(ctx context.Context, indexID, pattern string) ([]ModuleEntry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT module_id, name, kind, superclass FROM modules
		 WHERE index_id = ? AND name GLOB ?
		 ORDER BY position`,
		indexID, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to find modules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ModuleEntry
	for rows.Next() {
		var (
			e          ModuleEntry
			id         string
			superclass sql.NullString
		)
		if err := rows.Scan(&id, &e.Name, &e.Kind, &superclass); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		e.ModuleID = core.ID(id)
		e.Superclass = superclass.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// FindMethods returns every definition of a method name in an index, in
// load order.
func (s *SQLiteStore) FindMethods(ctx context.Context, indexID, name string) ([]MethodEntry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT module_id, module, name, visibility, singleton, owner, location FROM methods
		 WHERE index_id = ? AND name = ?
		 ORDER BY position`,
		indexID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find methods: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []MethodEntry
	for rows.Next() {
		var (
			e        MethodEntry
			id       string
			location sql.NullString
		)
		if err := rows.Scan(&id, &e.Module, &e.Name, &e.Visibility, &e.Singleton, &e.Owner, &location); err != nil {
			return nil, fmt.Errorf("failed to scan method: %w", err)
		}
		e.ModuleID = core.ID(id)
		e.Location = location.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// RequiredLibs returns the library paths recorded for an index.
func (s *SQLiteStore) RequiredLibs(ctx context.Context, indexID string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM required_libs WHERE index_id = ? ORDER BY position`, indexID)
	if err != nil {
		return nil, fmt.Errorf("failed to get required libs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan required lib: %w", err)
		}
		out = append(out, path)
	}
	return out, rows.Err()
}
