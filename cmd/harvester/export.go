package main

import (
	"github.com/nexconsult/rera-harvester/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the record table and failed ledger to an Excel workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			records, err := storage.OpenRecordTable(a.cfg.Harvest.RecordsFile)
			if err != nil {
				return err
			}
			ledger, err := storage.OpenFailedLedger(a.cfg.Harvest.FailedFile)
			if err != nil {
				return err
			}

			n, err := storage.ExportXLSX(records, ledger, out)
			if err != nil {
				return err
			}
			a.logger.WithFields(logrus.Fields{
				"out":     out,
				"records": n,
				"failed":  ledger.Len(),
			}).Info("Workbook exported")
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "harvest.xlsx", "workbook path")
	return cmd
}
