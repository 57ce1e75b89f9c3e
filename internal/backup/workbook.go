package backup

import (
	"fmt"
	"sort"

	"github.com/foodfleet/seedkit/internal/domain"

	"github.com/xuri/excelize/v2"
)

// RenderWorkbook converts a snapshot document into an Excel workbook, one
// sheet per table, for human inspection of a backup before restoring it.
func RenderWorkbook(doc domain.SnapshotDocument) (*excelize.File, error) {
	file := excelize.NewFile()

	tables := make([]string, 0, len(doc))
	for table := range doc {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for i, table := range tables {
		sheet := sheetName(table)
		if i == 0 {
			if err := file.SetSheetName(file.GetSheetName(0), sheet); err != nil {
				return nil, fmt.Errorf("rename sheet for %s: %w", table, err)
			}
		} else if _, err := file.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("create sheet for %s: %w", table, err)
		}

		columns := tableColumns(doc[table])
		header := make([]any, len(columns))
		for c, column := range columns {
			header[c] = column
		}
		if err := file.SetSheetRow(sheet, "A1", &header); err != nil {
			return nil, fmt.Errorf("write header for %s: %w", table, err)
		}

		for r, row := range doc[table] {
			values := make([]any, len(columns))
			for c, column := range columns {
				values[c] = row[column]
			}
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return nil, fmt.Errorf("address row %d of %s: %w", r, table, err)
			}
			if err := file.SetSheetRow(sheet, cell, &values); err != nil {
				return nil, fmt.Errorf("write row %d of %s: %w", r, table, err)
			}
		}
	}

	return file, nil
}

// tableColumns returns the union of column names across rows, sorted.
func tableColumns(rows domain.TableRows) []string {
	seen := map[string]bool{}
	for _, row := range rows {
		for column := range row {
			seen[column] = true
		}
	}
	columns := make([]string, 0, len(seen))
	for column := range seen {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

// Excel caps sheet names at 31 characters.
func sheetName(table string) string {
	if len(table) > 31 {
		return table[:31]
	}
	return table
}
