package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/csmcal/wf2wf/pkg/environ"
	"github.com/csmcal/wf2wf/pkg/exporters"
	"github.com/csmcal/wf2wf/pkg/importers"
	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/prompt"
	"github.com/spf13/cobra"
)

func newConvertCmd(verbose *bool) *cobra.Command {
	var (
		input       string
		inFormat    string
		output      string
		outFormat   string
		interactive bool
		autoEnv     string
		pushReg     string
		confirmPush bool
		sbom        bool
		apptainer   bool
		platform    string
		targetEnv   string
		intents     []string
	)
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a workflow file to another format",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				return usagef("--input is required")
			}
			if _, err := os.Stat(input); err != nil {
				return usagef("input file %s: %v", input, err)
			}
			if autoEnv != importers.AutoEnvOff && autoEnv != importers.AutoEnvBuild && autoEnv != importers.AutoEnvReuse {
				return usagef("--auto-env must be build, reuse, or off")
			}

			log := newLogger(*verbose)
			defer log.Sync()
			ctx := context.Background()

			if inFormat == "" {
				detected, err := importers.DetectFormat(input)
				if err != nil {
					return usagef("%v", err)
				}
				inFormat = detected
			}
			imp, err := importers.Get(inFormat)
			if err != nil {
				return usagef("%v", err)
			}

			if outFormat == "" && output != "" {
				outFormat = formatFromOutput(output)
			}
			if outFormat == "" {
				outFormat = ir.FormatIR
				fmt.Fprintln(os.Stderr, "Warning: Defaulting to Intermediate Representation")
			}
			exp, err := exporters.Get(outFormat)
			if err != nil {
				return usagef("%v", err)
			}
			if output == "" {
				base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
				ext := exp.DefaultExtension()
				if ext == "" {
					output = "Snakefile"
				} else {
					output = base + ext
				}
			}

			envManager := environ.NewManager(environ.Opts{Logger: log})
			buildOpts := environ.BuildOpts{
				Platform:     platform,
				PushRegistry: pushReg,
				ConfirmPush:  confirmPush,
			}

			importer := importers.NewOrchestrator()
			importer.Interactive = interactive
			importer.TargetEnv = targetEnv
			importer.Logger = log
			importer.Prompter = prompt.Get(interactive)
			importer.EnvManager = envManager
			importer.AutoEnv = autoEnv
			importer.BuildOpts = buildOpts

			w, err := importer.Import(ctx, imp, input, importers.Options{Verbose: *verbose})
			if err != nil {
				return err
			}
			for _, intent := range intents {
				w.Intent = append(w.Intent, intent)
			}

			if sbom || apptainer {
				if err := emitEnvironmentArtifacts(ctx, envManager, w, output, buildOpts, sbom, apptainer); err != nil {
					return err
				}
			}

			exporter := exporters.NewOrchestrator()
			exporter.Interactive = interactive
			exporter.TargetEnv = targetEnv
			exporter.Logger = log
			exporter.Prompter = prompt.Get(interactive)
			if err := exporter.Export(exp, w, output, exporters.Options{Verbose: *verbose}); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Converted %s (%s) -> %s (%s)\n", input, inFormat, output, outFormat)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "source workflow file")
	cmd.Flags().StringVar(&inFormat, "in-format", "", "source format (auto-detected from extension when omitted)")
	cmd.Flags().StringVar(&output, "output", "", "output artifact path")
	cmd.Flags().StringVar(&outFormat, "out-format", "", "target format (defaults to IR JSON)")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "prompt for missing values")
	cmd.Flags().StringVar(&autoEnv, "auto-env", importers.AutoEnvOff, "environment image handling: build, reuse, or off")
	cmd.Flags().StringVar(&pushReg, "push-registry", "", "registry to push built environment images to")
	cmd.Flags().BoolVar(&confirmPush, "confirm-push", false, "confirm pushing images to the registry")
	cmd.Flags().BoolVar(&sbom, "sbom", false, "generate SBOMs for task containers")
	cmd.Flags().BoolVar(&apptainer, "apptainer", false, "convert task containers to SIF")
	cmd.Flags().StringVar(&platform, "platform", "", "image platform (e.g. linux/amd64)")
	cmd.Flags().StringVar(&targetEnv, "target-environment", "", "target execution environment")
	cmd.Flags().StringArrayVar(&intents, "intent", nil, "ontology intent IRI (repeatable)")
	return cmd
}

// formatFromOutput guesses the target format from the output filename.
func formatFromOutput(output string) string {
	base := strings.ToLower(filepath.Base(output))
	if base == "snakefile" || strings.HasSuffix(base, ".smk") {
		return ir.FormatSnakemake
	}
	switch filepath.Ext(base) {
	case ".dag":
		return ir.FormatDAGMan
	case ".nf":
		return ir.FormatNextflow
	case ".cwl":
		return ir.FormatCWL
	case ".wdl":
		return ir.FormatWDL
	case ".ga":
		return ir.FormatGalaxy
	}
	return ""
}

// emitEnvironmentArtifacts produces SBOM and SIF files for every distinct
// container the workflow references.
func emitEnvironmentArtifacts(ctx context.Context, m *environ.Manager, w *ir.Workflow, output string, opts environ.BuildOpts, sbom, sif bool) error {
	report := m.Detect(w, "")
	dir := filepath.Dir(output)
	for _, image := range report.Containers {
		if sbom {
			if _, err := m.GenerateSBOM(ctx, image, filepath.Join(dir, "sbom"), opts); err != nil {
				return err
			}
		}
		if sif {
			if _, err := m.ConvertToSIF(ctx, image, filepath.Join(dir, "sif"), opts); err != nil {
				return err
			}
		}
	}
	return nil
}
