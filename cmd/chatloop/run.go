package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/chatloop/internal/agent"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var compact bool

	cmd := &cobra.Command{
		Use:   "run [file|-]",
		Short: "Run the extraction loop once on a JSON request",
		Long: `Run the extraction loop once and print the JSON response.

The request is read from the named file, or from stdin when the argument is
"-" or omitted.

Examples:
  # Run a captured request
  chatloop run request.json

  # Pipe a request without touching the on-disk store
  cat request.json | chatloop run --memory -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			var req agent.Request
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("decoding request: %w", err)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			resp, err := a.loop.Run(ctx, req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(resp)
		},
	}

	cmd.Flags().BoolVar(&compact, "compact", false, "print the response on one line")
	return cmd
}

// readInput reads the request from the file in args, or from in.
func readInput(in io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("no request on stdin")
		}
		return data, nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", args[0], err)
	}
	return data, nil
}
