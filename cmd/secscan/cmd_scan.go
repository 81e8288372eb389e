package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	orchestrators "github.com/Amicidal/sigmachad-sub001/internal/domain-orchestrators"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces"
	domainservices "github.com/Amicidal/sigmachad-sub001/internal/domain/services"
)

type scanFlags struct {
	incremental bool
	baseline    string
	severity    string
	confidence  float64
	concurrency int
	only        []string
	recent      bool
	noOSV       bool
	ephemeral   bool
	json        bool
}

func newScanCmd(root *rootOptions) *cobra.Command {
	f := &scanFlags{}

	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Scan a project for code issues, secrets and vulnerable dependencies",
		Example: `  secscan scan
  secscan scan ./service --incremental
  secscan scan --only sast,secrets --severity high --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runScan(cmd.Context(), cmd.OutOrStdout(), root, f, dir)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&f.incremental, "incremental", false, "only re-analyze files changed since the baseline scan")
	flags.StringVar(&f.baseline, "baseline", "", "baseline scan id (default: latest scan with recorded state)")
	flags.StringVar(&f.severity, "severity", "", "minimum severity to report (critical, high, medium, low, info)")
	flags.Float64Var(&f.confidence, "confidence", -1, "minimum rule confidence in [0,1]")
	flags.IntVar(&f.concurrency, "concurrency", 0, "force parallel scanning with this many workers")
	flags.StringSliceVar(&f.only, "only", nil, "scanners to run: sast, secrets, dependency")
	flags.BoolVar(&f.recent, "recent", false, "scan only the most recently modified files")
	flags.BoolVar(&f.noOSV, "no-osv", false, "use the offline advisory list instead of OSV")
	flags.BoolVar(&f.ephemeral, "ephemeral", false, "keep results in memory instead of the scan database")
	flags.BoolVar(&f.json, "json", false, "print the result as JSON")
	return cmd
}

// scanOptions merges command flags over the configured defaults
func (f *scanFlags) scanOptions(cfg entities.ScanOptions) (entities.ScanOptions, error) {
	opts := cfg
	if f.severity != "" {
		s := entities.Severity(strings.ToLower(f.severity))
		if !s.Valid() {
			return opts, fmt.Errorf("invalid severity %q", f.severity)
		}
		opts.SeverityThreshold = s
	}
	if f.confidence >= 0 {
		if f.confidence > 1 {
			return opts, fmt.Errorf("confidence must be within [0,1], got %v", f.confidence)
		}
		opts.ConfidenceThreshold = f.confidence
	}
	if f.concurrency < 0 {
		return opts, fmt.Errorf("concurrency must not be negative, got %d", f.concurrency)
	}
	opts.MaxConcurrent = f.concurrency

	if len(f.only) > 0 {
		opts.IncludeSAST, opts.IncludeSecrets, opts.IncludeDependencies = false, false, false
		for _, name := range f.only {
			switch entities.ScanType(strings.ToLower(strings.TrimSpace(name))) {
			case entities.ScanSAST:
				opts.IncludeSAST = true
			case entities.ScanSecrets:
				opts.IncludeSecrets = true
			case entities.ScanDependency:
				opts.IncludeDependencies = true
			default:
				return opts, fmt.Errorf("unknown scanner %q", name)
			}
		}
	}
	return opts, nil
}

func runScan(ctx context.Context, out io.Writer, root *rootOptions, f *scanFlags, dir string) error {
	if f.baseline != "" && !f.incremental {
		return errors.New("--baseline requires --incremental")
	}

	opts, err := f.scanOptions(root.cfg.ScanOptions())
	if err != nil {
		return err
	}
	if f.noOSV {
		root.cfg.OSV.Enabled = false
	}
	if f.ephemeral {
		root.cfg.Database.Ephemeral = true
	}

	a, err := newApp(ctx, root, dir)
	if err != nil {
		return err
	}
	defer a.Close()

	req := entities.ScanRequest{Options: opts}
	if !f.recent {
		req.EntityIDs = []string{"."}
	}

	if !f.incremental {
		res, err := a.cancellable(ctx, func(scanCtx context.Context) (*entities.SecurityScanResult, error) {
			return a.scanner.PerformScan(scanCtx, req)
		})
		return report(out, f.json, res, nil, err)
	}

	baseline := f.baseline
	if baseline == "" {
		if baseline, err = latestBaseline(ctx, a.repo); err != nil {
			return err
		}
	}
	a.logger.Debug("incremental scan", interfaces.F("baseline", baseline))

	var inc *entities.IncrementalScanResult
	res, err := a.cancellable(ctx, func(scanCtx context.Context) (*entities.SecurityScanResult, error) {
		r, err := a.scanner.PerformIncrementalScan(scanCtx, req, baseline)
		if r == nil {
			return nil, err
		}
		inc = r
		return &r.SecurityScanResult, err
	})
	return report(out, f.json, res, inc, err)
}

// cancellable runs fn and moves its scan to cancelled when ctx ends,
// before the scan itself observes the cancellation
func (a *app) cancellable(ctx context.Context, fn func(context.Context) (*entities.SecurityScanResult, error)) (*entities.SecurityScanResult, error) {
	scanCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			for _, s := range a.scanner.ActiveScans() {
				_ = a.scanner.CancelScan(s.ScanID)
			}
			cancel()
		case <-done:
		}
	}()

	return fn(scanCtx)
}

func report(out io.Writer, asJSON bool, res *entities.SecurityScanResult, inc *entities.IncrementalScanResult, scanErr error) error {
	if res == nil {
		return scanErr
	}

	if asJSON {
		var v any = res
		if inc != nil {
			v = inc
		}
		if err := writeJSON(out, v); err != nil {
			return err
		}
	} else {
		printScanResult(out, res, inc)
	}

	switch {
	case errors.Is(scanErr, orchestrators.ErrScanCancelled):
		return scanErr
	case domainservices.ShouldBlock(res):
		return errBlocked
	default:
		return nil
	}
}
