package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel renders each sheet as a markdown-style section: a "# <sheet>" heading
// followed by one " | "-separated line per non-empty row. The headings give the
// segmenter section titles to attach to chunks.
func extractExcel(content []byte) (*Extraction, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	var sections []string
	for _, sheet := range wb.GetSheetList() {
		lines, err := sheetLines(wb, sheet)
		if err != nil {
			return nil, err
		}
		if len(lines) == 0 {
			continue
		}
		sections = append(sections, "# "+sheet+"\n"+strings.Join(lines, "\n"))
	}
	return &Extraction{Text: strings.Join(sections, "\n\n")}, nil
}

// sheetLines streams the rows of sheet, dropping blank cells and rows.
func sheetLines(wb *excelize.File, sheet string) ([]string, error) {
	rows, err := wb.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read row in sheet %q: %w", sheet, err)
		}
		cells := cols[:0]
		for _, c := range cols {
			if c = strings.TrimSpace(c); c != "" {
				cells = append(cells, c)
			}
		}
		if len(cells) > 0 {
			lines = append(lines, strings.Join(cells, " | "))
		}
	}
	return lines, rows.Error()
}
