package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOutputFormat(t *testing.T) {
	for _, f := range ValidOutputFormats {
		assert.NoError(t, ValidateOutputFormat(string(f)))
	}
	err := ValidateOutputFormat("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table, wide, json, yaml")
}

func sampleTable() *Table {
	tbl := NewTable(Column{Name: "name"}, Column{Name: "order"}, Column{Name: "path", Wide: true})
	tbl.AppendRow("widgets", "config,app", "/etc/widgets.yaml")
	tbl.AppendRow("gadgets")
	return tbl
}

func TestTableRender(t *testing.T) {
	tests := []struct {
		name      string
		noHeaders bool
		wide      bool
		wantLines [][]string
	}{
		{
			name: "plain",
			wantLines: [][]string{
				{"NAME", "ORDER"},
				{"widgets", "config,app"},
				{"gadgets"},
			},
		},
		{
			name: "wide",
			wide: true,
			wantLines: [][]string{
				{"NAME", "ORDER", "PATH"},
				{"widgets", "config,app", "/etc/widgets.yaml"},
				{"gadgets"},
			},
		},
		{
			name:      "no headers",
			noHeaders: true,
			wantLines: [][]string{
				{"widgets", "config,app"},
				{"gadgets"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			sampleTable().Render(&buf, tt.noHeaders, tt.wide)
			lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
			require.Len(t, lines, len(tt.wantLines))
			for i, want := range tt.wantLines {
				assert.Equal(t, want, strings.Fields(lines[i]))
				assert.NotContains(t, lines[i], "|")
			}
		})
	}
}

func TestPrinter(t *testing.T) {
	data := map[string]any{"name": "widgets", "order": []string{"config", "app"}}

	tests := []struct {
		format OutputFormat
		want   string
	}{
		{format: OutputFormatJSON, want: "\"name\": \"widgets\""},
		{format: OutputFormatYAML, want: "name: widgets\n"},
		{format: OutputFormatTable, want: "NAME"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			p, err := NewPrinter(&CommandFlags{OutputFormat: string(tt.format)}, &buf)
			require.NoError(t, err)
			require.NoError(t, p.Print(data, sampleTable()))
			assert.Contains(t, buf.String(), tt.want)
		})
	}

	_, err := NewPrinter(&CommandFlags{OutputFormat: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestPrinter_WithoutTable(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Format: OutputFormatTable, Out: &buf}
	require.NoError(t, p.Print(map[string]string{"kind": "Widget"}, nil))
	assert.Equal(t, "kind: Widget\n", buf.String())
}

func TestJoinOrNone(t *testing.T) {
	assert.Equal(t, "<none>", JoinOrNone(nil, ","))
	assert.Equal(t, "a,b", JoinOrNone([]string{"a", "b"}, ","))
}

func TestFormatMessages(t *testing.T) {
	assert.Contains(t, FormatSuccess("installed"), "installed")
	assert.Contains(t, FormatWarning("careful"), "careful")
	assert.Contains(t, FormatError(assert.AnError), assert.AnError.Error())
}
