package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bookingsync/internal/models"

	"github.com/spf13/cobra"
)

func newCyclesCmd(configPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "cycles",
		Short: "Print the most recent sync cycles as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadConfigAndLogger(*configPath, "syncd-cycles")
			if err != nil {
				return err
			}
			if closer != nil {
				defer (func() { _ = closer.Close() })()
			}

			res := &resources{}
			defer res.Close()
			if err := openDatabase(cfg, res, &logger); err != nil {
				return err
			}
			if res.db == nil {
				return errors.New("database.path is not configured, no cycle history")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			cycles, err := res.db.GetRecentSyncCycles(ctx, limit)
			if err != nil {
				return err
			}

			if cycles == nil {
				cycles = []models.SyncCycle{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cycles)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of cycles to show")
	return cmd
}
