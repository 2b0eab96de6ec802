package schema

import (
	"fmt"
	"strings"
)

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name       string     `json:"name"`
	Columns    []Column   `json:"columns"`
	SampleRows [][]string `json:"sample_rows"`
}

// Context is the immutable schema description handed to the translator. It is
// built once when the connector opens and never mutated afterwards.
type Context struct {
	Tables []Table `json:"tables"`
}

// Render produces the textual schema context embedded into translation prompts:
// table name, typed column list, and the captured sample rows.
func (c Context) Render() string {
	var b strings.Builder
	for i, table := range c.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Table %s\n", table.Name)
		b.WriteString("Columns:\n")
		for _, col := range table.Columns {
			fmt.Fprintf(&b, "  %s %s\n", col.Name, col.Type)
		}
		if len(table.SampleRows) > 0 {
			fmt.Fprintf(&b, "Sample rows (%d):\n", len(table.SampleRows))
			b.WriteString("  " + joinColumnNames(table.Columns) + "\n")
			for _, row := range table.SampleRows {
				b.WriteString("  " + strings.Join(row, " | ") + "\n")
			}
		}
	}
	return b.String()
}

func joinColumnNames(columns []Column) string {
	names := make([]string, 0, len(columns))
	for _, col := range columns {
		names = append(names, col.Name)
	}
	return strings.Join(names, " | ")
}
