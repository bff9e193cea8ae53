// Package state persists loaded definition databases in SQLite so that
// modules and methods can be searched across snapshots without reloading
// them. Each saved snapshot is an index identified by a UUID.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/leapstack-labs/defsdb/pkg/core"
	"github.com/leapstack-labs/defsdb/pkg/defsdb"
)

// ErrIndexNotFound is returned when an index id is unknown.
var ErrIndexNotFound = errors.New("index not found")

// Store is the index persistence contract.
type Store interface {
	SaveIndex(ctx context.Context, db *defsdb.Database, source string) (*Index, error)
	GetIndex(ctx context.Context, id string) (*Index, error)
	ListIndexes(ctx context.Context) ([]*Index, error)
	DeleteIndex(ctx context.Context, id string) error
	FindModules(ctx context.Context, indexID, pattern string) ([]ModuleEntry, error)
	FindMethods(ctx context.Context, indexID, name string) ([]MethodEntry, error)
	RequiredLibs(ctx context.Context, indexID string) ([]string, error)
	Close() error
}

// Index is one saved snapshot.
type Index struct {
	ID        string       `json:"id"`
	Source    string       `json:"source"`
	CreatedAt time.Time    `json:"created_at"`
	Stats     defsdb.Stats `json:"stats"`
}

// ModuleEntry is a module or class row of an index.
type ModuleEntry struct {
	ModuleID   core.ID `json:"module_id"`
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`
	Superclass string  `json:"superclass,omitempty"`
}

// MethodEntry is a method definition row of an index.
type MethodEntry struct {
	ModuleID   core.ID `json:"module_id"`
	Module     string  `json:"module"`
	Name       string  `json:"name"`
	Visibility string  `json:"visibility"`
	Singleton  bool    `json:"singleton"`
	Owner      string  `json:"owner"`
	Location   string  `json:"location,omitempty"`
}

// Signature formats the entry as Module#name or Module.name.
func (m MethodEntry) Signature() string {
	if m.Singleton {
		return m.Module + "." + m.Name
	}
	return m.Module + "#" + m.Name
}

var _ Store = (*SQLiteStore)(nil)
