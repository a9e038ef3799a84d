package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MaxHeaderSearchRows is the maximum number of rows to scan for the header.
var MaxHeaderSearchRows = 20

// ContextCheckInterval is how often (in rows) to check for cancellation.
var ContextCheckInterval = 100

// candidateDelimiters in tie-break order.
var candidateDelimiters = []rune{',', ';', '\t'}

// Extract reads one export file of the given shape into raw rows keyed by
// canonical column name.
//
// HTML exports are read from their first <table>; anything else is read as
// delimited text. Columns the shape does not know are reported as
// unrecognized_column warnings and otherwise ignored.
func Extract(ctx context.Context, r io.Reader, name string, shape Shape) (*Extraction, error) {
	def, ok := Get(shape)
	if !ok {
		return nil, &ExtractionError{File: name, Reason: "unknown shape", Err: fmt.Errorf("%q is not registered", shape)}
	}
	if err := ctx.Err(); err != nil {
		return nil, &ExtractionError{File: name, Reason: "cancelled", Err: err}
	}

	data, err := readExport(r)
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return nil, &ExtractionError{File: name, Reason: "file too large", Err: err}
		}
		return nil, &ExtractionError{File: name, Reason: "unreadable file", Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ExtractionError{File: name, Reason: "empty file"}
	}

	text, encoding, err := decodeCharset(data)
	if err != nil {
		return nil, &ExtractionError{File: name, Reason: "encoding error", Err: err}
	}

	var records [][]string
	format := "delimited"
	if containsTable(text) {
		format = "html"
		records, err = parseHTMLTable(text)
	} else {
		records, err = parseDelimited(text)
	}
	if err != nil {
		return nil, &ExtractionError{File: name, Reason: "no tabular data", Err: err}
	}
	if len(records) == 0 {
		return nil, &ExtractionError{File: name, Reason: "no tabular data"}
	}

	headerRow := findHeaderRow(records, def)
	if headerRow < 0 {
		return nil, &ExtractionError{
			File:   name,
			Reason: "no header row",
			Err:    fmt.Errorf("missing required column among first %d rows: %s", MaxHeaderSearchRows, strings.Join(def.RequiredColumns(), ", ")),
		}
	}

	columns, warnings := mapColumns(records[headerRow], def, name)

	out := &Extraction{
		FileName: name,
		Shape:    shape,
		Format:   format,
		Encoding: encoding,
		Header:   records[headerRow],
		Warnings: warnings,
	}
	for i := headerRow + 1; i < len(records); i++ {
		if (i-headerRow)%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, &ExtractionError{File: name, Reason: "cancelled", Err: err}
			}
		}
		record := records[i]
		if isEmptyRow(record) {
			continue
		}
		values := make(map[string]string, len(columns))
		for idx, col := range columns {
			if col == "" {
				continue
			}
			var v string
			if idx < len(record) {
				v = record[idx]
			}
			values[col] = v
		}
		out.Rows = append(out.Rows, RawRow{Line: i + 1, Values: values})
	}

	slog.Debug("export extracted",
		"file", name,
		"shape", shape,
		"format", format,
		"encoding", encoding,
		"header_row", headerRow+1,
		"rows", len(out.Rows),
		"warnings", len(out.Warnings),
	)
	return out, nil
}

func containsTable(text []byte) bool {
	return bytes.Contains(bytes.ToLower(text), []byte("<table"))
}

// parseHTMLTable returns the rows of the first <table> in the document.
// Rows of tables nested inside it are not included.
func parseHTMLTable(text []byte) ([][]string, error) {
	doc, err := html.Parse(bytes.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	table := findElement(doc, atom.Table)
	if table == nil {
		return nil, errors.New("no <table> element")
	}

	var records [][]string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
				// nested table: not part of this region
			case atom.Tr:
				records = append(records, rowCells(c))
			default:
				walk(c)
			}
		}
	}
	walk(table)
	return records, nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func rowCells(tr *html.Node) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			cells = append(cells, nodeText(c))
		}
	}
	return cells
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// parseDelimited reads CSV-like text, picking the delimiter that occurs
// most often in the first non-empty line.
func parseDelimited(text []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(text))
	reader.Comma = detectDelimiter(text)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse delimited text: %w", err)
	}
	return records, nil
}

// detectDelimiter picks the candidate that occurs most often across the
// leading lines, since title rows above the header carry none.
func detectDelimiter(text []byte) rune {
	counts := make(map[rune]int, len(candidateDelimiters))
	scanned := 0
	for _, line := range strings.Split(string(text), "\n") {
		if scanned == MaxHeaderSearchRows+1 {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		scanned++
		for _, d := range candidateDelimiters {
			counts[d] += strings.Count(line, string(d))
		}
	}
	best, bestCount := candidateDelimiters[0], 0
	for _, d := range candidateDelimiters {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best
}

// columnIndex maps header tokens of a definition's names and aliases to
// canonical column names.
func columnIndex(def TableDefinition) map[string]string {
	idx := make(map[string]string)
	for _, spec := range def.FieldSpecs {
		idx[HeaderToken(spec.Name)] = spec.Name
		for _, alias := range spec.Aliases {
			if tok := HeaderToken(alias); tok != "" {
				if _, taken := idx[tok]; !taken {
					idx[tok] = spec.Name
				}
			}
		}
	}
	return idx
}

// findHeaderRow returns the index of the first row, within
// MaxHeaderSearchRows, containing every required column, or -1.
func findHeaderRow(records [][]string, def TableDefinition) int {
	idx := columnIndex(def)
	required := def.RequiredColumns()
	for i := 0; i < len(records) && i < MaxHeaderSearchRows; i++ {
		present := make(map[string]bool)
		for _, cell := range records[i] {
			if col, ok := idx[HeaderToken(cell)]; ok {
				present[col] = true
			}
		}
		found := true
		for _, col := range required {
			if !present[col] {
				found = false
				break
			}
		}
		if found {
			return i
		}
	}
	return -1
}

// mapColumns returns the canonical column for each header position ("" for
// ignored positions) and one warning per unrecognized column.
func mapColumns(header []string, def TableDefinition, file string) ([]string, []ValidationWarning) {
	idx := columnIndex(def)
	columns := make([]string, len(header))
	seen := make(map[string]bool)
	var warnings []ValidationWarning
	for i, cell := range header {
		tok := HeaderToken(cell)
		if tok == "" {
			continue
		}
		col, ok := idx[tok]
		if !ok {
			warnings = append(warnings, ValidationWarning{
				File:   file,
				Column: CleanCell(cell),
				Reason: ReasonUnrecognizedColumn,
				Detail: "column ignored",
			})
			continue
		}
		if seen[col] {
			warnings = append(warnings, ValidationWarning{
				File:   file,
				Column: CleanCell(cell),
				Reason: ReasonUnrecognizedColumn,
				Detail: fmt.Sprintf("duplicate of column %s, ignored", col),
			})
			continue
		}
		seen[col] = true
		columns[i] = col
	}
	return columns, warnings
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if CleanCell(cell) != "" {
			return false
		}
	}
	return true
}
