package main

import (
	"context"
	"errors"
	"fmt"
	"os/user"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/services"
)

func newSuppressCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suppress",
		Short: "Manage finding suppressions",
	}
	cmd.PersistentFlags().StringVar(&root.projectDir, "dir", ".", "project root the suppressions file belongs to")
	cmd.AddCommand(newSuppressAddCmd(root), newSuppressListCmd(root), newSuppressRemoveCmd(root))
	return cmd
}

type suppressFlags struct {
	kind    string
	rule    string
	issue   string
	pkg     string
	vuln    string
	path    string
	until   string
	reason  string
	creator string
}

func (f *suppressFlags) toRule() (entities.SuppressionRule, error) {
	rule := entities.SuppressionRule{
		Type: entities.SuppressionType(f.kind),
		Target: entities.SuppressionTarget{
			RuleID:          f.rule,
			IssueID:         f.issue,
			Package:         f.pkg,
			VulnerabilityID: f.vuln,
			Path:            f.path,
		},
		Reason:    f.reason,
		CreatedBy: f.creator,
	}

	switch rule.Type {
	case entities.SuppressIssue:
		if f.rule == "" && f.issue == "" && f.path == "" {
			return rule, errors.New("an issue suppression needs --rule, --issue or --path")
		}
	case entities.SuppressVulnerability:
		if f.pkg == "" && f.vuln == "" {
			return rule, errors.New("a vulnerability suppression needs --package or --vuln")
		}
	default:
		return rule, fmt.Errorf("unknown suppression type %q (issue or vulnerability)", f.kind)
	}

	if f.until != "" {
		until, err := parseUntil(f.until)
		if err != nil {
			return rule, err
		}
		rule.Until = &until
	}
	if rule.CreatedBy == "" {
		if u, err := user.Current(); err == nil {
			rule.CreatedBy = u.Username
		}
	}
	return rule, nil
}

func parseUntil(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --until %q (want YYYY-MM-DD or RFC 3339)", value)
}

func newSuppressAddCmd(root *rootOptions) *cobra.Command {
	f := &suppressFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a suppression",
		Example: `  secscan suppress add --type issue --rule sql-injection --path "legacy/**" --reason "tracked in SEC-12"
  secscan suppress add --type vulnerability --package lodash --vuln CVE-2021-23337 --until 2026-12-31 --reason "no fix"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rule, err := f.toRule()
			if err != nil {
				return err
			}
			engine, err := projectPolicyEngine(cmd.Context(), root)
			if err != nil {
				return err
			}
			added, err := engine.AddSuppression(cmd.Context(), rule)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Added suppression %s\n", added.ID)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.kind, "type", string(entities.SuppressIssue), "suppression type: issue or vulnerability")
	flags.StringVar(&f.rule, "rule", "", "rule id to suppress")
	flags.StringVar(&f.issue, "issue", "", "issue fingerprint to suppress")
	flags.StringVar(&f.pkg, "package", "", "package name to suppress")
	flags.StringVar(&f.vuln, "vuln", "", "CVE, GHSA or OSV id to suppress")
	flags.StringVar(&f.path, "path", "", "path glob the suppression applies to")
	flags.StringVar(&f.until, "until", "", "expiry date (YYYY-MM-DD or RFC 3339)")
	flags.StringVar(&f.reason, "reason", "", "why the finding is accepted")
	flags.StringVar(&f.creator, "by", "", "who added the suppression (default: current user)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newSuppressListCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List suppressions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := projectPolicyEngine(cmd.Context(), root)
			if err != nil {
				return err
			}
			rules := engine.Suppressions()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rules)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tTARGET\tUNTIL\tREASON")
			now := time.Now()
			for _, r := range rules {
				until := "-"
				if r.Until != nil {
					until = r.Until.Format(time.DateOnly)
					if r.Expired(now) {
						until += " (expired)"
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Type, describeTarget(r.Target), until, r.Reason)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print suppressions as JSON")
	return cmd
}

func newSuppressRemoveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a suppression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := projectPolicyEngine(cmd.Context(), root)
			if err != nil {
				return err
			}
			removed, err := engine.RemoveSuppression(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no suppression with id %q", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🗑️  Removed suppression %s\n", args[0])
			return nil
		},
	}
}

func projectPolicyEngine(ctx context.Context, root *rootOptions) (services.PolicyEngine, error) {
	dir, err := filepath.Abs(root.projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root.projectDir, err)
	}
	return newPolicyEngine(ctx, root.cfg, dir, root.logger)
}

func describeTarget(t entities.SuppressionTarget) string {
	var parts []string
	add := func(key, value string) {
		if value != "" {
			parts = append(parts, key+"="+value)
		}
	}
	add("rule", t.RuleID)
	add("issue", t.IssueID)
	add("package", t.Package)
	add("vuln", t.VulnerabilityID)
	add("path", t.Path)
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
