package main

import (
	"context"
	"fmt"
	"time"

	"bookingsync/internal/export"
	"bookingsync/internal/service"

	"github.com/spf13/cobra"
)

func newExportCmd(configPath *string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the operations still waiting in the durable cache to an XLSX file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadConfigAndLogger(*configPath, "syncd-export")
			if err != nil {
				return err
			}
			if closer != nil {
				defer (func() { _ = closer.Close() })()
			}
			if dir == "" {
				dir = cfg.Exports.Path
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			res := &resources{}
			defer res.Close()
			if err := openDatabase(cfg, res, &logger); err != nil {
				return err
			}
			cache, err := buildCache(ctx, cfg, res, &logger)
			if err != nil {
				return err
			}

			ops, err := service.NewCleanupService(cache, &logger).Restore(ctx)
			if err != nil {
				return err
			}
			path, err := export.SavePendingXLSX(dir, ops, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d pending operations written to %s\n", len(ops), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "output directory (defaults to exports.path)")
	return cmd
}
