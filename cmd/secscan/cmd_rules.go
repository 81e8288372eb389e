package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	domainservices "github.com/Amicidal/sigmachad-sub001/internal/domain/services"
)

type ruleView struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Category    entities.RuleCategory `json:"category"`
	Severity    entities.Severity     `json:"severity"`
	Confidence  float64               `json:"confidence"`
	CWE         string                `json:"cwe,omitempty"`
	OWASP       string                `json:"owasp,omitempty"`
	Remediation string                `json:"remediation,omitempty"`
}

func newRulesCmd(root *rootOptions) *cobra.Command {
	var (
		category string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the built-in detection rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine := domainservices.NewRuleEngine(afero.NewOsFs(), root.logger, domainservices.RuleEngineConfig{
				MaxFileSize: root.cfg.Scan.MaxFileSize,
			})

			var views []ruleView
			for _, r := range engine.Rules() {
				if category != "" && !strings.EqualFold(string(r.Category), category) {
					continue
				}
				views = append(views, ruleView{
					ID:          r.ID,
					Name:        r.Name,
					Category:    r.Category,
					Severity:    r.Severity,
					Confidence:  r.Confidence,
					CWE:         r.CWE,
					OWASP:       r.OWASP,
					Remediation: r.Remediation,
				})
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), views)
			}
			return printRules(cmd.OutOrStdout(), views)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only list rules in this category (sast, secrets, configuration)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print rules as JSON")
	return cmd
}

func printRules(out io.Writer, views []ruleView) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tSEVERITY\tCONFIDENCE\tCWE\tNAME")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\n", v.ID, v.Category, v.Severity, v.Confidence, v.CWE, v.Name)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d rules\n", len(views))
	return nil
}
