package journal

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/tealeg/xlsx"
)

const maxSheetName = 30

var sheetNameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", "?", "_", "*", "_", "[", "_", "]", "_", ":", "_",
)

func sheetName(path string, taken map[string]bool) string {
	base := sheetNameReplacer.Replace(filepath.Base(path))
	if base == "" || base == "." {
		base = "document"
	}

	name := truncate(base, maxSheetName)
	for i := 2; taken[name]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		name = truncate(base, maxSheetName-len(suffix)) + suffix
	}
	taken[name] = true
	return name
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n])
	}
	return s
}

// Export writes the entries matching f to an xlsx workbook at dest. There is
// one sheet per document, in the order of Documents, and each sheet lists the
// document's analyses oldest first.
func (j *Journal) Export(dest string, f Filter) error {
	f.Oldest = true

	iter, err := j.Entries(f)
	if err != nil {
		return err
	}
	entries, err := iter.List()
	if err != nil {
		return err
	}

	byPath := map[string][]Entry{}
	for _, entry := range entries {
		byPath[entry.Path] = append(byPath[entry.Path], entry)
	}

	docs, err := j.Documents()
	if err != nil {
		return err
	}

	wb := xlsx.NewFile()
	taken := map[string]bool{}

	for _, path := range docs {
		docEntries, ok := byPath[path]
		if !ok {
			continue
		}

		sheet, err := wb.AddSheet(sheetName(path, taken))
		if err != nil {
			return err
		}

		// write the header
		row := sheet.AddRow()
		row.AddCell().SetValue(path)
		row = sheet.AddRow()
		row.AddCell().SetValue("Analyzed At")
		row.AddCell().SetValue("OK")
		row.AddCell().SetValue("Errors")
		row.AddCell().SetValue("First Error")
		row.AddCell().SetValue("Duration (ms)")

		for _, entry := range docEntries {
			createdAt := ""
			if entry.CreatedAt != nil && entry.CreatedAt.Valid {
				createdAt = entry.CreatedAt.Time.Format(time.RFC3339)
			}

			row := sheet.AddRow()
			row.AddCell().SetValue(createdAt)
			row.AddCell().SetValue(entry.OK)
			row.AddCell().SetValue(entry.ErrorCount)
			row.AddCell().SetValue(entry.FirstError)
			row.AddCell().SetValue(entry.DurationMs)
		}
	}

	if len(wb.Sheets) == 0 {
		if _, err := wb.AddSheet("analyses"); err != nil {
			return err
		}
	}

	return wb.Save(dest)
}
