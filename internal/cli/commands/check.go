package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/defsdb/internal/cli/output"
	"github.com/leapstack-labs/defsdb/pkg/defsdb"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// checkDebounce is how long watched snapshots must stay quiet before a
// recheck.
const checkDebounce = 200 * time.Millisecond

// CheckOptions holds options for the check command.
type CheckOptions struct {
	Watch bool
}

// CheckResult is the outcome of loading one snapshot.
type CheckResult struct {
	Snapshot string        `json:"snapshot"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Stats    *defsdb.Stats `json:"stats,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// CheckOutput is the JSON output of the check command.
type CheckOutput struct {
	Results []CheckResult `json:"results"`
	Failed  int           `json:"failed"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	opts := &CheckOptions{}

	cmd := &cobra.Command{
		Use:   "check [snapshot...]",
		Short: "Validate snapshot files",
		Long: `Load each snapshot and report whether it is well formed and every
reference in it resolves. Without arguments the configured snapshot and
check.snapshots from the config file are checked.

Snapshots are loaded concurrently. With --watch the files are rechecked
whenever they change.`,
		Example: `  # Check the configured snapshot
  defsdb check

  # Check several snapshots
  defsdb check a.json b.json

  # Recheck on every change
  defsdb check --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Recheck when a snapshot changes")

	return cmd
}

func runCheck(cmd *cobra.Command, args []string, opts *CheckOptions) error {
	cmdCtx := NewCommandContextWithoutDB(cmd)
	cfg := cmdCtx.Cfg

	paths := args
	if len(paths) == 0 {
		paths = append([]string{cfg.Snapshot}, cfg.Check.Snapshots...)
	}
	limit := cfg.Check.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	checker := &snapshotChecker{
		paths:  paths,
		limit:  limit,
		logger: cmdCtx.Logger,
		r:      cmdCtx.Renderer,
	}

	if !opts.Watch {
		return checker.runOnce(cmd.Context())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return checker.watch(ctx)
}

type snapshotChecker struct {
	paths  []string
	limit  int
	logger *slog.Logger
	r      *output.Renderer
}

// check loads every snapshot and returns the results in argument order.
func (c *snapshotChecker) check(ctx context.Context) []CheckResult {
	results := make([]CheckResult, len(c.paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for i, path := range c.paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = CheckResult{Snapshot: path, Error: err.Error()}
				return nil
			}
			start := time.Now()
			db, err := defsdb.Open(path, defsdb.LoadOptions{Logger: c.logger})
			res := CheckResult{Snapshot: path, Duration: time.Since(start)}
			if err != nil {
				res.Error = err.Error()
			} else {
				stats := db.Stats()
				res.OK = true
				res.Stats = &stats
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runOnce checks all snapshots, reports them and fails if any failed.
func (c *snapshotChecker) runOnce(ctx context.Context) error {
	results := c.check(ctx)
	failed := c.report(results)
	if failed > 0 {
		return fmt.Errorf("%d of %d snapshots failed", failed, len(results))
	}
	return nil
}

func (c *snapshotChecker) report(results []CheckResult) int {
	failed := 0
	for _, res := range results {
		if !res.OK {
			failed++
		}
	}

	r := c.r
	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(CheckOutput{Results: results, Failed: failed}); err != nil {
			c.logger.Error("failed to write results", slog.Any("error", err))
		}
		return failed
	}

	for _, res := range results {
		if res.OK {
			detail := fmt.Sprintf("(%d modules, %d methods, %s)",
				res.Stats.Modules+res.Stats.Classes, res.Stats.MethodDefinitions,
				res.Duration.Round(time.Millisecond))
			r.StatusLine(res.Snapshot, "success", detail)
		} else {
			r.StatusLine(res.Snapshot, "failed", res.Error)
		}
	}
	return failed
}

// watch checks once, then rechecks after every burst of changes to any of
// the snapshots until ctx is done.
func (c *snapshotChecker) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	targets := make(map[string]bool, len(c.paths))
	dirs := make(map[string]bool)
	for _, p := range c.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		targets[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		// Watch directories so that editors replacing the file by rename
		// keep being seen.
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	_ = c.runOnce(ctx)
	c.r.Muted("Watching for changes. Press Ctrl+C to stop.")

	recheck := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !targets[filepath.Clean(ev.Name)] {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(checkDebounce, func() {
				select {
				case recheck <- struct{}{}:
				default:
				}
			})

		case <-recheck:
			c.r.Println("")
			_ = c.runOnce(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("watch error", slog.Any("error", err))
		}
	}
}
