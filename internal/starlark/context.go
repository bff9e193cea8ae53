package starlark

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/defsdb/pkg/defsdb"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// fileOptions enables the dialect extensions scripts are written against:
// top-level loops and conditionals, while loops, sets and recursion.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Runtime runs scripts and expressions against one database. It is safe
// for concurrent use; every call gets its own thread.
type Runtime struct {
	db     *defsdb.Database
	out    io.Writer
	logger *slog.Logger
	vars   map[string]any

	// globals is the combined set of all globals for execution
	globals starlark.StringDict

	// mu serializes writes to out from concurrent threads
	mu sync.Mutex
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithOutput sends print() output to w. Without it print is discarded.
func WithOutput(w io.Writer) Option {
	return func(r *Runtime) {
		r.out = w
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithVars exposes values to scripts as the "vars" dict.
func WithVars(vars map[string]any) Option {
	return func(r *Runtime) {
		r.vars = vars
	}
}

// NewRuntime creates a runtime for db.
func NewRuntime(db *defsdb.Database, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		db:     db,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.globals = Predeclared(db)
	vars, err := GoToStarlark(r.varsOrEmpty())
	if err != nil {
		return nil, fmt.Errorf("invalid vars: %w", err)
	}
	r.globals["vars"] = vars
	r.globals.Freeze()
	return r, nil
}

func (r *Runtime) varsOrEmpty() map[string]any {
	if r.vars == nil {
		return map[string]any{}
	}
	return r.vars
}

// Globals returns the predeclared globals for execution.
func (r *Runtime) Globals() starlark.StringDict {
	return r.globals
}

// Exec runs a script and returns its global bindings. src may be a string,
// a []byte or an io.Reader; nil reads filename.
func (r *Runtime) Exec(filename string, src any) (starlark.StringDict, error) {
	thread := r.newThread(filename)
	r.logger.Debug("executing script", slog.String("file", filename))

	globals, err := starlark.ExecFileOptions(fileOptions, thread, filename, src, r.globals)
	if err != nil {
		return nil, scriptError(filename, "", err)
	}
	return globals, nil
}

// Eval evaluates a single expression.
func (r *Runtime) Eval(expr, filename string) (starlark.Value, error) {
	return r.EvalWithLocals(expr, filename, nil)
}

// EvalWithLocals evaluates an expression with additional local variables,
// which shadow the predeclared globals.
func (r *Runtime) EvalWithLocals(expr, filename string, locals starlark.StringDict) (starlark.Value, error) {
	thread := r.newThread(filename)

	// Combine globals with locals (locals take precedence)
	env := r.globals
	if len(locals) > 0 {
		env = make(starlark.StringDict, len(r.globals)+len(locals))
		for k, v := range r.globals {
			env[k] = v
		}
		for k, v := range locals {
			env[k] = v
		}
	}

	result, err := starlark.EvalOptions(fileOptions, thread, filename, expr, env)
	if err != nil {
		return nil, scriptError(filename, expr, err)
	}
	return result, nil
}

// EvalString evaluates an expression and returns a display string:
// strings as is, None as "", anything else in Starlark syntax.
func (r *Runtime) EvalString(expr, filename string) (string, error) {
	result, err := r.Eval(expr, filename)
	if err != nil {
		return "", err
	}

	switch v := result.(type) {
	case starlark.String:
		return string(v), nil
	case starlark.NoneType:
		return "", nil
	default:
		return result.String(), nil
	}
}

// newThread creates a thread whose print writes a line to the output.
func (r *Runtime) newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name:  name,
		Print: r.print,
	}
}

func (r *Runtime) print(_ *starlark.Thread, msg string) {
	if r.out == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out, msg)
}

// Run executes a script against db, writing print() output to out.
func Run(db *defsdb.Database, filename string, src any, out io.Writer) error {
	r, err := NewRuntime(db, WithOutput(out))
	if err != nil {
		return err
	}
	_, err = r.Exec(filename, src)
	return err
}

// EvalError represents an error while running a script or expression.
// Backtrace holds the Starlark call stack when one is available.
type EvalError struct {
	File      string
	Line      int
	Expr      string
	Message   string
	Backtrace string
}

func (e *EvalError) Error() string {
	var where string
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d", e.File, e.Line)
	} else {
		where = e.File
	}
	if e.Expr != "" {
		return fmt.Sprintf("%s: error evaluating %q: %s", where, e.Expr, e.Message)
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

// scriptError converts a Starlark error to an *EvalError, keeping the
// position of the failing call or syntax error.
func scriptError(filename, expr string, err error) error {
	e := &EvalError{File: filename, Expr: expr, Message: err.Error()}
	switch se := err.(type) {
	case *starlark.EvalError:
		e.Message = se.Msg
		e.Backtrace = se.Backtrace()
		// builtin frames carry no position; use the innermost script frame
		for i := len(se.CallStack) - 1; i >= 0; i-- {
			if line := se.CallStack[i].Pos.Line; line > 0 {
				e.Line = int(line)
				break
			}
		}
	case syntax.Error:
		e.Message = se.Msg
		e.Line = int(se.Pos.Line)
	}
	return e
}
