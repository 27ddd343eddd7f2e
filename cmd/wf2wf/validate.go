package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/csmcal/wf2wf/pkg/importers"
	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/spf13/cobra"
)

func newValidateCmd(verbose *bool) *cobra.Command {
	var emitSchema bool
	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a workflow file; exit 0 when valid",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if emitSchema {
				schema, err := ir.GenerateJSONSchema()
				if err != nil {
					return err
				}
				fmt.Println(string(schema))
				return nil
			}
			if len(args) != 1 {
				return usagef("validate requires a workflow path")
			}
			path := args[0]
			format, err := importers.DetectFormat(path)
			if err != nil {
				return usagef("%v", err)
			}
			log := newLogger(*verbose)
			defer log.Sync()

			var w *ir.Workflow
			if format == ir.FormatIR {
				w, err = ir.LoadFile(path)
				if err != nil {
					return err
				}
			} else {
				imp, err := importers.Get(format)
				if err != nil {
					return usagef("%v", err)
				}
				parsed, err := imp.Parse(path, importers.Options{Verbose: *verbose})
				if err != nil {
					return &importers.ImportError{Path: path, Format: format, Err: err}
				}
				w, err = imp.BuildSkeleton(parsed, path)
				if err != nil {
					return &importers.ImportError{Path: path, Format: format, Err: err}
				}
				w.Meta().SourceFormat = format
			}
			issues := w.Validate()
			out := struct {
				Valid  bool                  `json:"valid"`
				Issues []*ir.ValidationError `json:"issues"`
			}{Valid: true, Issues: issues}
			for _, issue := range issues {
				if issue.Severity == "error" {
					out.Valid = false
				}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if !out.Valid {
				return fmt.Errorf("workflow %s is invalid", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&emitSchema, "emit-schema", false, "print the IR JSON Schema and exit")
	return cmd
}
