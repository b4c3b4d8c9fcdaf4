package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/chatloop/internal/config"
	"github.com/fyrsmithlabs/chatloop/internal/embeddings"
)

func newModelCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect the embedding model",
	}
	cmd.AddCommand(newModelVerifyCmd(flags), newModelStatusCmd(flags))
	return cmd
}

func newModelVerifyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check model assets against checksums.json",
		Long: `Check every file listed in the model's checksums.json against its
SHA-256 digest. Exits non-zero on the first missing or modified file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithFile(flags.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			spec, err := embeddings.LookupModel(cfg.Embeddings.Model)
			if err != nil {
				return err
			}
			dir := filepath.Join(cfg.Embeddings.CacheDir, spec.DirName)

			manifest, err := embeddings.VerifyAssets(dir)
			if err != nil {
				return fmt.Errorf("verifying %s: %w", dir, err)
			}

			files := make([]string, 0, len(manifest.Files))
			for name := range manifest.Files {
				files = append(files, name)
			}
			sort.Strings(files)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d files verified in %s\n", spec.Name, len(files), dir)
			for _, name := range files {
				fmt.Fprintf(out, "  ok  %s\n", name)
			}
			return nil
		},
	}
}

func newModelStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Load the model and print the engine status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, &globalFlags{configPath: flags.configPath, memory: true})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a.engine.Init(ctx))
		},
	}
}
