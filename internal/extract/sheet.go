package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractSpreadsheet renders each sheet as a paragraph of "cell | cell" rows, skipping empty rows.
func extractSpreadsheet(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	var sheets []string
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", name, err)
		}
		var lines []string
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, c := range row {
				if c = strings.TrimSpace(c); c != "" {
					cells = append(cells, c)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, " | "))
			}
		}
		if len(lines) > 0 {
			sheets = append(sheets, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(sheets, "\n\n"), nil
}
