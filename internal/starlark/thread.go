package starlark

import (
	"sync"

	"go.starlark.net/starlark"
	"golang.org/x/sync/errgroup"
)

// ThreadPool manages a pool of Starlark threads for parallel evaluation.
type ThreadPool struct {
	mu      sync.Mutex
	threads []*starlark.Thread
	maxSize int
	print   func(*starlark.Thread, string)
}

// NewThreadPool creates a new thread pool with the specified maximum size.
// New threads print through printFn; nil discards output.
func NewThreadPool(maxSize int, printFn func(*starlark.Thread, string)) *ThreadPool {
	if maxSize <= 0 {
		maxSize = 10 // default pool size
	}
	if printFn == nil {
		printFn = func(*starlark.Thread, string) {}
	}
	return &ThreadPool{
		threads: make([]*starlark.Thread, 0, maxSize),
		maxSize: maxSize,
		print:   printFn,
	}
}

// Get retrieves a thread from the pool or creates a new one.
// The thread name is used for error reporting.
func (p *ThreadPool) Get(name string) *starlark.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) > 0 {
		thread := p.threads[len(p.threads)-1]
		p.threads = p.threads[:len(p.threads)-1]
		thread.Name = name
		return thread
	}

	return &starlark.Thread{Name: name, Print: p.print}
}

// Put returns a thread to the pool for reuse.
// If the pool is full, the thread is discarded.
func (p *ThreadPool) Put(thread *starlark.Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) < p.maxSize {
		// Clear any state that might leak between uses
		thread.Name = ""
		p.threads = append(p.threads, thread)
	}
}

// Size returns the current number of threads in the pool.
func (p *ThreadPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

// ParallelExecutor evaluates many expressions against one runtime with
// bounded concurrency.
type ParallelExecutor struct {
	runtime *Runtime
	pool    *ThreadPool
	limit   int
}

// NewParallelExecutor creates an executor running at most maxConcurrency
// evaluations at a time.
func NewParallelExecutor(r *Runtime, maxConcurrency int) *ParallelExecutor {
	pool := NewThreadPool(maxConcurrency, r.print)
	return &ParallelExecutor{
		runtime: r,
		pool:    pool,
		limit:   pool.maxSize,
	}
}

// Execute runs every task and collects the results in task order. A
// failing task does not stop the others.
func (e *ParallelExecutor) Execute(tasks []EvalTask) []EvalResult {
	results := make([]EvalResult, len(tasks))

	var g errgroup.Group
	g.SetLimit(e.limit)
	for i, task := range tasks {
		g.Go(func() error {
			thread := e.pool.Get(task.Name)
			defer e.pool.Put(thread)

			value, err := starlark.EvalOptions(fileOptions, thread, task.Name, task.Expr, e.runtime.globals)
			if err != nil {
				err = scriptError(task.Name, task.Expr, err)
			}
			results[i] = EvalResult{
				Name:  task.Name,
				Value: value,
				Error: err,
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// EvalTask represents a single evaluation task.
type EvalTask struct {
	Name string // Identifier for this task (used for error reporting)
	Expr string // Starlark expression to evaluate
}

// EvalResult represents the result of an evaluation task.
type EvalResult struct {
	Name  string
	Value starlark.Value
	Error error
}
