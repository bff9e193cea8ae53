package defsdb

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/defsdb/pkg/core"
)

// SchemaError reports a snapshot record that is missing a required field
// or carries an invalid value. Field is a dotted path into the snapshot.
type SchemaError struct {
	Field   string
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error at %s: %s", e.Field, e.Message)
}

// DanglingReferenceError reports a reference to an id that the snapshot
// does not define.
type DanglingReferenceError struct {
	Kind string // "module" or "method"
	ID   core.ID
	From string // field that holds the reference
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("dangling %s reference %q at %s", e.Kind, e.ID, e.From)
}

// InvalidModuleContextError reports a lexical context segment that does not
// name a module. It is distinct from a constant that is simply not found.
type InvalidModuleContextError struct {
	Name    string
	Context []string
}

func (e *InvalidModuleContextError) Error() string {
	return fmt.Sprintf("invalid module context: %s does not resolve to a module (context %s)",
		e.Name, strings.Join(e.Context, "::"))
}

// ConstantLookupError is raised by structured resolution when every search
// level has been exhausted.
type ConstantLookupError struct {
	Name   string
	Module string // module the search started from; empty for the top level
	Top    bool   // the first segment of a constant path failed
}

func (e *ConstantLookupError) Error() string {
	switch {
	case e.Module == "":
		return fmt.Sprintf("failed to lookup top constant %s", e.Name)
	case e.Top:
		return fmt.Sprintf("failed to lookup top constant %s from %s", e.Name, e.Module)
	default:
		return fmt.Sprintf("%s is not defined in %s", e.Name, e.Module)
	}
}

// ArgumentError reports a call that violates an argument contract.
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string {
	return e.Message
}

// ModuleNotFoundError reports a class path that does not resolve to a module.
type ModuleNotFoundError struct {
	Path string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("cannot find module %s", e.Path)
}
