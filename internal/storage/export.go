package storage

import (
	"fmt"

	"github.com/nexconsult/rera-harvester/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	recordsSheet = "records"
	failedSheet  = "failed"
)

// ExportXLSX writes both tables into one workbook at out.
func ExportXLSX(records *RecordTable, ledger *FailedLedger, out string) (int, error) {
	rows, err := records.Rows()
	if err != nil {
		return 0, fmt.Errorf("read records: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	// The default workbook starts with "Sheet1".
	if err := f.SetSheetName("Sheet1", recordsSheet); err != nil {
		return 0, err
	}
	if err := writeSheet(f, recordsSheet, models.RecordColumns, rows); err != nil {
		return 0, err
	}

	if _, err := f.NewSheet(failedSheet); err != nil {
		return 0, err
	}
	entries := ledger.Entries()
	failedRows := make([][]string, 0, len(entries))
	for _, e := range entries {
		failedRows = append(failedRows, []string{fmt.Sprint(e.ProjectID), e.URL})
	}
	if err := writeSheet(f, failedSheet, models.FailedColumns, failedRows); err != nil {
		return 0, err
	}

	if err := f.SetPanes(recordsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return 0, err
	}

	if err := f.SaveAs(out); err != nil {
		return 0, fmt.Errorf("save %s: %w", out, err)
	}
	return len(rows), nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]string) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}
