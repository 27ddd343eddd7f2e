package main

import (
	"context"
	"fmt"
	"os"

	"github.com/csmcal/wf2wf/pkg/bco"
	"github.com/spf13/cobra"
)

func newBCOCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bco",
		Short: "BioCompute Object operations",
	}
	cmd.AddCommand(newBCOSignCmd())
	cmd.AddCommand(newBCODiffCmd())
	cmd.AddCommand(newBCOValidateCmd())
	return cmd
}

func newBCOSignCmd() *cobra.Command {
	var keyPath string
	cmd := &cobra.Command{
		Use:   "sign <bco.json>",
		Short: "Sign a BCO: update its etag and write .sig and .intoto.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyPath == "" {
				return usagef("--key is required")
			}
			result, err := bco.Sign(context.Background(), args[0], keyPath, nil, version)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Signed %s (etag %s)\n", args[0], result.Etag)
			fmt.Fprintf(os.Stderr, "  signature:   %s\n", result.SigPath)
			fmt.Fprintf(os.Stderr, "  attestation: %s\n", result.IntotoPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "", "private key for signing")
	return cmd
}

func newBCODiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <a.json> <b.json>",
		Short: "Unified diff per top-level BCO domain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bco.Load(args[0])
			if err != nil {
				return err
			}
			b, err := bco.Load(args[1])
			if err != nil {
				return err
			}
			diff, err := bco.Diff(a, b)
			if err != nil {
				return err
			}
			fmt.Print(diff)
			return nil
		},
	}
}

func newBCOValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <bco.json>",
		Short: "Schema check against IEEE 2791",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := bco.Load(args[0])
			if err != nil {
				return err
			}
			issues, err := bco.Validate(doc)
			if err != nil {
				return err
			}
			if len(issues) > 0 {
				for _, issue := range issues {
					fmt.Fprintf(os.Stderr, "invalid: %s\n", issue)
				}
				return fmt.Errorf("%s fails IEEE 2791 validation", args[0])
			}
			fmt.Fprintf(os.Stderr, "%s is a valid IEEE 2791 object\n", args[0])
			return nil
		},
	}
}
