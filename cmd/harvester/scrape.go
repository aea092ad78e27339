package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nexconsult/rera-harvester/internal/metrics"
	"github.com/nexconsult/rera-harvester/internal/models"
	"github.com/nexconsult/rera-harvester/internal/service/browser"
	"github.com/nexconsult/rera-harvester/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newScrapeCmd() *cobra.Command {
	var (
		id      int
		persist bool
	)

	cmd := &cobra.Command{
		Use:     "scrape",
		Short:   "Scrape a single project and print its record as JSON",
		Example: "  harvester scrape --id 12345",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if id < 1 {
				return fmt.Errorf("--id must be a positive project ID, got %d", id)
			}
			ctx := cmd.Context()

			var (
				records *storage.RecordTable
				ledger  *storage.FailedLedger
			)
			if persist {
				if records, err = storage.OpenRecordTable(a.cfg.Harvest.RecordsFile); err != nil {
					return err
				}
				if ledger, err = storage.OpenFailedLedger(a.cfg.Harvest.FailedFile); err != nil {
					return err
				}
			}

			sess, err := browser.NewFactory(a.cfg.Browser, a.cfg.Captcha.SubmitTimeout, a.logger).NewSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			nav := newNavigator(a.cfg, a.logger)
			rec, err := nav.Run(ctx, sess, id)
			if err != nil {
				if ledger != nil && !records.Contains(id) {
					if _, lerr := ledger.Add(models.FailedEntry{ProjectID: id, URL: nav.URL(id)}); lerr != nil {
						a.logger.WithError(lerr).Error("Failed to write failed ledger entry")
					}
				}
				return err
			}

			if records != nil {
				if !records.Contains(id) {
					if err := records.Append(rec); err != nil {
						return err
					}
					metrics.IncRecordsWritten()
				}
				if _, err := ledger.Remove(id); err != nil {
					a.logger.WithError(err).Error("Failed to remove project from failed ledger")
				}
			}
			a.logger.WithFields(logrus.Fields{
				"project_id": id,
				"populated":  rec.Populated(),
				"persisted":  persist,
			}).Info("Project harvested")

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}

	cmd.Flags().IntVar(&id, "id", 0, "project ID to scrape")
	cmd.Flags().BoolVar(&persist, "persist", true, "append the record to the record table")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}
