package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces"
	domainservices "github.com/Amicidal/sigmachad-sub001/internal/domain/services"
	"github.com/Amicidal/sigmachad-sub001/internal/external-adapters/filesystem"
)

const watchDebounce = 300 * time.Millisecond

func newWatchCmd(root *rootOptions) *cobra.Command {
	f := &scanFlags{incremental: true}

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Re-scan changed files whenever the project changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runWatch(cmd.Context(), cmd.OutOrStdout(), root, f, dir)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.severity, "severity", "", "minimum severity to report")
	flags.Float64Var(&f.confidence, "confidence", -1, "minimum rule confidence in [0,1]")
	flags.StringSliceVar(&f.only, "only", nil, "scanners to run: sast, secrets, dependency")
	flags.BoolVar(&f.noOSV, "no-osv", false, "use the offline advisory list instead of OSV")
	return cmd
}

func runWatch(ctx context.Context, out io.Writer, root *rootOptions, f *scanFlags, dir string) error {
	opts, err := f.scanOptions(root.cfg.ScanOptions())
	if err != nil {
		return err
	}
	if f.noOSV {
		root.cfg.OSV.Enabled = false
	}

	a, err := newApp(ctx, root, dir)
	if err != nil {
		return err
	}
	defer a.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch init failed: %w", err)
	}
	defer watcher.Close()

	if err := addWatchRecursive(watcher, a.root); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}

	baseline, err := latestBaseline(ctx, a.repo)
	if err != nil {
		return err
	}
	req := entities.ScanRequest{EntityIDs: []string{"."}, Options: opts}

	scan := func() {
		res, err := a.scanner.PerformIncrementalScan(ctx, req, baseline)
		if res == nil {
			a.logger.Error("incremental scan failed", interfaces.Err(err))
			return
		}
		if res.Status == entities.ScanCompleted {
			baseline = res.ScanID
		}
		printWatchLine(out, res)
	}

	fmt.Fprintf(out, "👀 Watching %s (Ctrl+C to stop)\n", a.root)
	scan()

	// a full channel already holds a pending run
	pending := make(chan struct{}, 1)
	var timer *time.Timer
	trigger := func() {
		select {
		case pending <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case <-pending:
			scan()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if skipped(a.root, ev.Name, a.source.Excluded) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addWatchRecursive(watcher, ev.Name); err != nil {
						a.logger.Warn("cannot watch directory", interfaces.F("path", ev.Name), interfaces.Err(err))
					}
				}
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, trigger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("watch error", interfaces.Err(err))
		}
	}
}

func printWatchLine(out io.Writer, res *entities.IncrementalScanResult) {
	stamp := time.Now().Format(time.TimeOnly)
	switch {
	case res.Status != entities.ScanCompleted:
		fmt.Fprintf(out, "[%s] ❌ scan %s %s: %s\n", stamp, res.ScanID, res.Status, res.Error)
	case domainservices.ShouldBlock(&res.SecurityScanResult):
		fmt.Fprintf(out, "[%s] 🚫 %d changed, %d issues, %d vulnerabilities, blocking policy violated\n",
			stamp, res.ChangedFiles, res.Summary.TotalIssues, res.Summary.TotalVulnerabilities)
	default:
		fmt.Fprintf(out, "[%s] ✅ %d changed, %d issues, %d vulnerabilities, score %.1f\n",
			stamp, res.ChangedFiles, res.Summary.TotalIssues, res.Summary.TotalVulnerabilities, res.Summary.Score)
	}
}

// skipped reports whether path lies under a directory the scanner never
// reads or matches an exclude glob
func skipped(root, path string, excluded func(rel string) bool) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if excluded != nil && excluded(rel) {
		return true
	}
	for dir := filepath.Dir(rel); dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		if isSkipDir(filepath.Base(dir)) {
			return true
		}
	}
	return isSkipDir(filepath.Base(rel))
}

func isSkipDir(name string) bool {
	for _, d := range filesystem.DefaultSkipDirs {
		if name == d {
			return true
		}
	}
	return false
}

func addWatchRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && isSkipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
