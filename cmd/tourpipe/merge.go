package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tour-ingest/internal/reconcile"
	"github.com/JakeFAU/tour-ingest/internal/tour"
)

func newMergeCmd() *cobra.Command {
	var fresh, storePath, output string
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Folds a fresh table into the store",
		Long: `Matches fresh rows to stored rows by id (or by booking link when the id
sets do not overlap), refreshes content columns and appends the rest.
Externally-owned columns of stored rows are never written.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := requireFile(fresh); err != nil {
				return err
			}
			if output == "" {
				output = storePath
			}

			freshStore, closeFresh, err := openTableStore(e.cfg.Pipeline.TableBackend, fresh)
			if err != nil {
				return err
			}
			defer closeFresh()
			freshTable, err := freshStore.Load(ctx)
			if err != nil {
				return fmt.Errorf("load fresh table: %w", err)
			}

			existing, closeExisting, err := openTableStore(e.cfg.Pipeline.TableBackend, storePath)
			if err != nil {
				return err
			}
			defer closeExisting()
			current, err := existing.Load(ctx)
			if err != nil {
				return fmt.Errorf("load store: %w", err)
			}

			merged, stats := reconcile.MergeTables(current, freshTable)

			target := existing
			if output != storePath {
				out, closeOut, err := openTableStore(e.cfg.Pipeline.TableBackend, output)
				if err != nil {
					return err
				}
				defer closeOut()
				target = out
			}
			if err := target.Save(ctx, merged); err != nil {
				return fmt.Errorf("save %s: %w", output, err)
			}

			e.logger.Info("merge complete",
				zap.String("mode", string(stats.Mode)),
				zap.Int("updated", stats.Updated),
				zap.Int("appended", stats.Appended),
				zap.Int("ambiguous", stats.Ambiguous),
				zap.Int("duplicates", stats.Duplicates),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "merged by %s into %s: %d updated, %d appended (%d ambiguous), %d duplicates dropped, %d rows untouched\n",
				stats.Mode, output, stats.Updated, stats.Appended, stats.Ambiguous, stats.Duplicates, stats.Untouched)
			return nil
		},
	}
	cmd.Flags().StringVar(&fresh, "fresh", "", "table with freshly extracted rows")
	cmd.Flags().StringVar(&storePath, "store", "", "table to merge into")
	cmd.Flags().StringVar(&output, "output", "", "where to write the result (default --store)")
	_ = cmd.MarkFlagRequired("fresh")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}

// requireFile reports tour.ErrInputNotFound when path does not exist.
func requireFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", tour.ErrInputNotFound, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return nil
}
