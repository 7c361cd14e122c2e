package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hyperjump/bunbetsu/internal/cli"
	"github.com/hyperjump/bunbetsu/internal/models"
)

func newIngestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Copy files into the data directory and index them",
		Long:  `Each file replaces any earlier version with the same name. A file that fails to ingest leaves the index unchanged.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, _, logger, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer svc.Close()

			var (
				results []models.IngestResult
				errs    []error
			)
			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				r, err := svc.SaveAndIngest(ctx, filepath.Base(path), content)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				results = append(results, r)
			}
			if err := cli.WriteSources(cmd.OutOrStdout(), results, format); err != nil {
				return err
			}
			return errors.Join(errs...)
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <source>",
		Short: "Remove a source file and its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, logger, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer svc.Close()

			n, err := svc.RemoveSource(ctx, args[0])
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("source %q is not indexed", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d documents from %s\n", n, args[0])
			return nil
		},
	}
}

func newSourcesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List indexed sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, _, logger, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer svc.Close()

			sources, err := svc.Sources(ctx)
			if err != nil {
				return err
			}
			return cli.WriteSources(cmd.OutOrStdout(), sources, format)
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "info",
		Aliases: []string{"status"},
		Short:   "Show the retriever status",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, _, logger, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer svc.Close()
			return cli.WriteSearchInfo(cmd.OutOrStdout(), svc.SearchInfo(ctx), format)
		},
	}
}

func newResetCmd(a *app) *cobra.Command {
	var reindex bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop the index and the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, logger, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer svc.Close()

			if reindex {
				results, err := svc.Reindex(ctx)
				if werr := cli.WriteSources(cmd.OutOrStdout(), results, cli.OutputText); werr != nil {
					return werr
				}
				return err
			}
			if err := svc.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "index reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&reindex, "reindex", false, "ingest the data directory again after resetting")
	return cmd
}
