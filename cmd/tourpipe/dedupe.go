package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tour-ingest/internal/pipeline"
	"github.com/JakeFAU/tour-ingest/internal/reconcile"
)

func newDedupeCmd() *cobra.Command {
	var storePath, allowList, scope, output string
	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Removes duplicate rows from the store",
		Long: `Keeps the most complete row per booking link. With an allow list, rows
whose link is not listed are dropped first. The list comes from --allow-list
or, failing that, from the scope's allow_links.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := requireFile(storePath); err != nil {
				return err
			}
			if output == "" {
				output = storePath
			}

			var allow []string
			switch {
			case allowList != "":
				allow, err = pipeline.LoadURLs(allowList)
				if err != nil {
					return err
				}
			case scope != "":
				allow = e.cfg.Scope(scope).AllowLinks
			}

			src, closeSrc, err := openTableStore(e.cfg.Pipeline.TableBackend, storePath)
			if err != nil {
				return err
			}
			defer closeSrc()
			table, err := src.Load(ctx)
			if err != nil {
				return fmt.Errorf("load store: %w", err)
			}

			cleaned, stats := reconcile.Dedupe(table, allow)

			target := src
			if output != storePath {
				out, closeOut, err := openTableStore(e.cfg.Pipeline.TableBackend, output)
				if err != nil {
					return err
				}
				defer closeOut()
				target = out
			}
			if err := target.Save(ctx, cleaned); err != nil {
				return fmt.Errorf("save %s: %w", output, err)
			}

			e.logger.Info("dedupe complete",
				zap.Int("kept", stats.Kept),
				zap.Int("duplicates", stats.Duplicates),
				zap.Int("not_allowed", stats.NotAllowed),
				zap.Int("unlinked", stats.UnlinkedRow),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: kept %d rows, dropped %d duplicates and %d rows outside the allow list\n",
				output, stats.Kept, stats.Duplicates, stats.NotAllowed)
			return nil
		},
	}
	cmd.Flags().StringVar(&storePath, "store", "", "table to clean")
	cmd.Flags().StringVar(&allowList, "allow-list", "", "file with the booking links to keep, one per line")
	cmd.Flags().StringVar(&scope, "scope", "", "use this scope's allow_links when no --allow-list is given")
	cmd.Flags().StringVar(&output, "output", "", "where to write the result (default --store)")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}
