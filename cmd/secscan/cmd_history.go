package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		dir    string
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history [scan-id]",
		Short: "List recorded scans, or show one scan in full",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root.cfg.OSV.Enabled = false

			a, err := newApp(ctx, root, dir)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				res, err := a.scanner.GetScan(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, res)
				}
				printScanResult(out, res, nil)
				return nil
			}

			scans, err := a.repo.ListScans(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, scans)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCAN ID\tSTATUS\tSTARTED\tDURATION\tISSUES\tVULNS\tSCORE")
			for _, s := range scans {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%.1f\n",
					s.ScanID,
					s.Status,
					s.StartedAt.Local().Format(time.DateTime),
					s.Duration.Round(time.Millisecond),
					s.Summary.TotalIssues,
					s.Summary.TotalVulnerabilities,
					s.Summary.Score,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "project root whose scan database is read")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of scans to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
