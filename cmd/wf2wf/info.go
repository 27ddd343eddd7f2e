package main

import (
	"encoding/json"
	"os"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <path>",
		Short: "Print a JSON summary of an IR workflow file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := ir.LoadFile(args[0])
			if err != nil {
				return err
			}
			checksum, err := ir.ComputeChecksum(w)
			if err != nil {
				return err
			}
			summary := map[string]any{
				"name":       w.Name,
				"version":    w.Version,
				"task_count": len(w.Tasks),
				"edge_count": len(w.Edges),
				"checksum":   checksum,
			}
			if w.Metadata != nil {
				summary["source_format"] = w.Metadata.SourceFormat
				summary["source_file"] = w.Metadata.SourceFile
			}
			if len(w.LossMap) > 0 {
				summary["loss_entries"] = len(w.LossMap)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
}
