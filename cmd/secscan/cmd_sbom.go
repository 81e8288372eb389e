package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	adapters "github.com/Amicidal/sigmachad-sub001/internal/domain-adapters/gateways"
	"github.com/Amicidal/sigmachad-sub001/internal/external-adapters/filesystem"
	"github.com/Amicidal/sigmachad-sub001/internal/external-adapters/manifest"
)

func newSBOMCmd(root *rootOptions) *cobra.Command {
	var (
		output  string
		project string
	)

	cmd := &cobra.Command{
		Use:   "sbom [path]",
		Short: "Write a CycloneDX bill of materials for the project's manifests",
		Long: "Collects dependencies from every supported manifest under path and writes\n" +
			"a CycloneDX JSON document. Supported manifests: " + fmt.Sprint(manifest.SupportedManifests()),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			rootDir, fs, err := projectFs(dir)
			if err != nil {
				return err
			}
			if project == "" {
				project = filepath.Base(rootDir)
			}

			// advisories are not part of an SBOM
			cfg := *root.cfg
			cfg.OSV.Enabled = false
			collector, err := newCollector(&cfg, fs, root.logger)
			if err != nil {
				return err
			}

			source, err := filesystem.NewSource(fs, filesystem.SourceConfig{Exclude: cfg.Scan.Exclude}, root.logger)
			if err != nil {
				return err
			}
			files, err := source.All(ctx)
			if err != nil {
				return err
			}
			deps, err := collector.Collect(ctx, files)
			if err != nil {
				return err
			}

			sbom, err := adapters.NewSBOMGenerator().GenerateSBOM(project, deps)
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := afero.NewOsFs().Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}
			if err := writeJSON(out, sbom); err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "📋 Wrote %d components to %s\n", len(sbom.Components), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the SBOM to this file instead of stdout")
	cmd.Flags().StringVar(&project, "name", "", "project name (default: directory name)")
	return cmd
}
