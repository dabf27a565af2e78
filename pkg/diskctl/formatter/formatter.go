package formatter

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func buildDefaultTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)

	// Set the header's format
	t.Style().Format.Header = text.FormatDefault
	return t
}

func PrintTable(title string, header table.Row, rows []table.Row) {
	t := buildDefaultTable()
	// Set the table's title
	if title != "" {
		t.SetTitle(title)
	}
	// Set the table's header and rows
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.Render()
}
