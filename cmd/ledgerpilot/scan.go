package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/mverde/ledgerpilot/internal/config"
	"github.com/mverde/ledgerpilot/internal/jobs"
	"github.com/mverde/ledgerpilot/internal/source"
)

func newScanCmd() *cobra.Command {
	var kinds []string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan external sources and stage pending confirmations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			connectors := map[string]source.Connector{
				"gmail":    &source.GmailConnector{},
				"calendar": &source.CalendarConnector{},
			}
			tokens := &source.FileTokenSupplier{Dir: cfg.Scan.TokenDir}
			since := time.Now().UTC().AddDate(0, 0, -cfg.Scan.SinceDays)

			runner := jobs.NewRunner(cfg.Scan.MaxAttempts, slog.Default())
			for _, kind := range kinds {
				conn, ok := connectors[kind]
				if !ok {
					return fmt.Errorf("unknown source kind %q", kind)
				}
				k := kind
				runner.Enqueue(flagOwner, "scan-"+k, func(ctx context.Context) error {
					token, err := tokens.Token(ctx, flagOwner)
					if err != nil {
						return err
					}
					items, err := conn.Search(ctx, token, since)
					if err != nil {
						return err
					}
					sum := eng.scanner.Scan(ctx, flagOwner, k, items)
					slog.Info("scan finished", "kind", k,
						"scanned", sum.Scanned, "staged", sum.Staged,
						"skipped", sum.Skipped, "failed", sum.Failed)
					return nil
				})
			}
			runner.Shutdown()
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "source", []string{"gmail"}, "source kinds to scan (gmail, calendar)")
	return cmd
}
