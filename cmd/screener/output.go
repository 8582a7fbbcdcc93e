package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	return table
}

func checkFormat(format string) error {
	switch strings.ToLower(format) {
	case "table", "json":
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table or json)", format)
}

func money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func num(v float64, prec int) string {
	return fmt.Sprintf("%.*f", prec, v)
}
