package main

import (
	"fmt"
	"io"
	"os"
)

// Formatter prints tabular results in the format the user asked for with
// --output (table, json, csv).
type Formatter struct {
	format string
	writer io.Writer
}

func newFormatter(format string) *Formatter {
	return &Formatter{format: format, writer: os.Stdout}
}

func (f *Formatter) printTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range headers {
		fmt.Fprintf(f.writer, "%-*s ", widths[i], h)
	}
	fmt.Fprintln(f.writer)
	for i := range headers {
		fmt.Fprint(f.writer, dashes(widths[i]), " ")
	}
	fmt.Fprintln(f.writer)
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(f.writer, "%-*s ", widths[i], cell)
			}
		}
		fmt.Fprintln(f.writer)
	}
}

func (f *Formatter) printCSV(headers []string, rows [][]string) {
	fmt.Fprintln(f.writer, join(headers, ","))
	for _, row := range rows {
		fmt.Fprintln(f.writer, join(row, ","))
	}
}

func (f *Formatter) printJSON(headers []string, rows [][]string) {
	fmt.Fprintln(f.writer, "[")
	for i, row := range rows {
		fmt.Fprint(f.writer, "  {")
		for j, cell := range row {
			if j > 0 {
				fmt.Fprint(f.writer, ", ")
			}
			fmt.Fprintf(f.writer, "%q: %q", headers[j], cell)
		}
		comma := ","
		if i == len(rows)-1 {
			comma = ""
		}
		fmt.Fprintf(f.writer, "}%s\n", comma)
	}
	fmt.Fprintln(f.writer, "]")
}

// print renders rows according to the formatter's configured output kind.
func (f *Formatter) print(headers []string, rows [][]string) {
	switch f.format {
	case "json":
		f.printJSON(headers, rows)
	case "csv":
		f.printCSV(headers, rows)
	default:
		f.printTable(headers, rows)
	}
}

func dashes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}

func join(items []string, sep string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += sep
		}
		out += item
	}
	return out
}
