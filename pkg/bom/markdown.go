package bom

import (
	"fmt"
	"strconv"
	"strings"
)

// parseMarkdownTable parses a GitHub-flavoured Markdown table BOM of the
// shape:
//
//	| id | name | quantity | unit | processes | materials | reference |
//	|----|------|----------|------|-----------|-----------|-----------|
//	| p1 | Frame | 1 | ea | machining | steel | |
//
// Column order is fixed by header name, not position, so authors can add or
// reorder columns; unrecognised columns are ignored. Sibling order is
// preserved (row order), matching the ordering guarantee spec.md §4.2
// requires of all parsers.
func parseMarkdownTable(data []byte) (manifestDoc, error) {
	lines := splitNonEmptyLines(string(data))
	if len(lines) < 2 {
		return manifestDoc{}, fmt.Errorf("markdown BOM: need a header and separator row, got %d lines", len(lines))
	}

	header := splitRow(lines[0])
	colIndex := make(map[string]int, len(header))
	for i, h := range header {
		colIndex[strings.ToLower(strings.TrimSpace(h))] = i
	}

	// lines[1] is the "|---|---|" separator row.
	var parts []componentDoc
	for _, line := range lines[2:] {
		row := splitRow(line)
		c := componentDoc{}
		if idx, ok := colIndex["id"]; ok && idx < len(row) {
			c.ID = strings.TrimSpace(row[idx])
		}
		if idx, ok := colIndex["name"]; ok && idx < len(row) {
			c.Name = strings.TrimSpace(row[idx])
		}
		if idx, ok := colIndex["quantity"]; ok && idx < len(row) {
			if q, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64); err == nil {
				c.Quantity = q
			}
		}
		if idx, ok := colIndex["unit"]; ok && idx < len(row) {
			c.Unit = strings.TrimSpace(row[idx])
		}
		if idx, ok := colIndex["processes"]; ok && idx < len(row) {
			c.Processes = splitList(row[idx])
		}
		if idx, ok := colIndex["materials"]; ok && idx < len(row) {
			c.Materials = splitList(row[idx])
		}
		if idx, ok := colIndex["reference"]; ok && idx < len(row) {
			c.Reference = strings.TrimSpace(row[idx])
		}
		if idx, ok := colIndex["description"]; ok && idx < len(row) {
			c.FreeText = strings.TrimSpace(row[idx])
		}
		parts = append(parts, c)
	}

	return manifestDoc{Parts: parts}, nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// splitRow splits one "| a | b | c |" row into trimmed cells. Escaped pipes
// are not recognised: every "|" separates two cells.
func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

func splitList(cell string) []string {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(cell, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
