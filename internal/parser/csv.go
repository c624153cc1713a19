package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docrag/internal/doctree"
)

// csvRowsPerSection groups data rows so one section stays near a parent's size.
const csvRowsPerSection = 20

// CSVParser handles CSV files. The first row is the header; each data row
// is rendered as "header: value" pairs so it reads well on its own.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	tree := &doctree.DocTree{Title: trimExt(filename, ".csv")}
	if len(records) == 0 {
		return tree, nil
	}

	headers := records[0]
	rows := records[1:]
	for i := 0; i < len(rows); i += csvRowsPerSection {
		end := min(i+csvRowsPerSection, len(rows))

		lines := make([]string, 0, end-i)
		for _, row := range rows[i:end] {
			lines = append(lines, csvRow(headers, row))
		}
		tree.Children = append(tree.Children, &doctree.DocNode{
			Title: fmt.Sprintf("Rows %d-%d", i+2, end+1), // 1-indexed, after the header
			Text:  strings.Join(lines, "\n"),
		})
	}
	return tree, nil
}

func csvRow(headers, row []string) string {
	cells := make([]string, 0, len(row))
	for j, cell := range row {
		if j < len(headers) && headers[j] != "" {
			cells = append(cells, headers[j]+": "+cell)
		} else {
			cells = append(cells, cell)
		}
	}
	return strings.Join(cells, ", ")
}
