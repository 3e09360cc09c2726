package resultset

import (
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// WriteMarkdown renders t as a pipe table that Parse reads back.
func (t *Table) WriteMarkdown(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(t.Header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.AppendBulk(t.Rows)
	table.Render()
}

// Markdown returns WriteMarkdown's output as a string.
func (t *Table) Markdown() string {
	var sb strings.Builder
	t.WriteMarkdown(&sb)
	return sb.String()
}
