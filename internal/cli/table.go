package cli

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Column is one table column. Wide columns are only shown in wide output.
type Column struct {
	Name string
	Wide bool
}

// Table is tabular command output.
type Table struct {
	Columns []Column
	Rows    [][]string
}

// NewTable creates a table with the given columns.
func NewTable(columns ...Column) *Table {
	return &Table{Columns: columns}
}

// AppendRow adds a row. Missing cells render empty.
func (t *Table) AppendRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// plainStyle renders kubectl-style tables: no borders, upper-case headers,
// three spaces between columns.
var plainStyle = func() table.Style {
	s := table.StyleDefault
	s.Name = "Plain"
	s.Box.PaddingLeft = ""
	s.Box.PaddingRight = "   "
	s.Options = table.Options{}
	s.Format.Header = text.FormatUpper
	return s
}()

// Render writes the table to w.
func (t *Table) Render(w io.Writer, noHeaders, wide bool) {
	var keep []int
	header := table.Row{}
	for i, c := range t.Columns {
		if c.Wide && !wide {
			continue
		}
		keep = append(keep, i)
		header = append(header, c.Name)
	}

	tw := table.NewWriter()
	tw.SetStyle(plainStyle)
	if !noHeaders {
		tw.AppendHeader(header)
	}
	for _, r := range t.Rows {
		row := make(table.Row, len(keep))
		for j, i := range keep {
			if i < len(r) {
				row[j] = r[i]
			} else {
				row[j] = ""
			}
		}
		tw.AppendRow(row)
	}

	var out strings.Builder
	for _, line := range strings.Split(tw.Render(), "\n") {
		out.WriteString(strings.TrimRight(line, " "))
		out.WriteString("\n")
	}
	_, _ = io.WriteString(w, out.String())
}

// JoinOrNone joins values with sep, or returns "<none>" when there are none.
func JoinOrNone(values []string, sep string) string {
	if len(values) == 0 {
		return "<none>"
	}
	return strings.Join(values, sep)
}
