package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/chatloop/internal/dom"
)

func newFailuresCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Inspect recorded failure cases",
	}
	cmd.AddCommand(newFailuresSimilarCmd(flags), newFailuresListCmd(flags))
	return cmd
}

func newFailuresSimilarCmd(flags *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "similar <text>",
		Short: "Find failure cases whose content resembles text",
		Long: `Query the failure index for the cases closest to text. Every FAIL run
is indexed by its verdict and the text of its sampled candidates.

Examples:
  chatloop failures similar "assistant reply missing attachments"
  chatloop failures similar --limit 10 "duplicate messages"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.memory {
				return fmt.Errorf("the failure index is not available with --memory")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			if a.index == nil {
				return fmt.Errorf("failure index unavailable at %s", a.cfg.Storage.FailureIndexPath)
			}

			hits, err := a.index.Similar(ctx, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, hits)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "k", 5, "maximum number of results")
	return cmd
}

func newFailuresListCmd(flags *globalFlags) *cobra.Command {
	var host, fingerprint string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List failure cases recorded for a domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.memory {
				return fmt.Errorf("nothing is recorded with --memory")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			cases, err := a.sqlite.FailureCases(ctx, dom.Key{Host: host, Fingerprint: fingerprint})
			if err != nil {
				return err
			}
			return printJSON(cmd, cases)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "domain host")
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "domain fingerprint")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("fingerprint")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
