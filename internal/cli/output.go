package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mesh-intelligence/logbook/internal/render"
	"github.com/mesh-intelligence/logbook/pkg/logbook"
	"github.com/mesh-intelligence/logbook/pkg/types"
)

const timeLayout = "2006-01-02 15:04"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	faintStyle  = cellStyle.Foreground(lipgloss.Color("245"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderTable draws headers and rows with a rounded border. Columns
// listed in faint are dimmed.
func renderTable(headers []string, rows [][]string, faint ...int) string {
	dim := make(map[int]bool, len(faint))
	for _, c := range faint {
		dim[c] = true
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case dim[col]:
				return faintStyle
			}
			return cellStyle
		})
	return t.Render()
}

func printCategory(w io.Writer, cat *types.Category) {
	fmt.Fprintf(w, "ID:          %s\n", cat.CategoryID)
	fmt.Fprintf(w, "Title:       %s\n", cat.Title)
	if cat.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", cat.Description)
	}
	fmt.Fprintf(w, "Created:     %s\n", cat.CreatedAt.Local().Format(timeLayout))
	fmt.Fprintf(w, "Updated:     %s\n", cat.UpdatedAt.Local().Format(timeLayout))
	if len(cat.Schema) == 0 {
		fmt.Fprintln(w, "Schema:      (no columns)")
		return
	}
	fmt.Fprintln(w, "Schema:")
	printSchema(w, cat.Schema)
}

func printSchema(w io.Writer, schema types.Schema) {
	rows := make([][]string, len(schema))
	for i, col := range schema {
		rows[i] = []string{col.Name, string(col.Type), col.ID}
	}
	fmt.Fprintln(w, renderTable([]string{"Name", "Type", "ID"}, rows, 2))
}

func printCategories(w io.Writer, cats []*types.Category) {
	if len(cats) == 0 {
		fmt.Fprintln(w, "No categories.")
		return
	}
	rows := make([][]string, len(cats))
	for i, cat := range cats {
		rows[i] = []string{cat.Title, fmt.Sprint(len(cat.Schema)), cat.CreatedAt.Local().Format(timeLayout), cat.CategoryID}
	}
	fmt.Fprintln(w, renderTable([]string{"Title", "Columns", "Created", "ID"}, rows, 3))
}

// printEntries draws a rendered category table with the logged time
// first and the entry id last.
func printEntries(w io.Writer, cat *types.Category, rendered logbook.RenderedTable) {
	if len(rendered.Rows) == 0 {
		fmt.Fprintf(w, "No entries in %s.\n", cat.Title)
		return
	}
	headers := append(append([]string{"Logged"}, rendered.Header...), "ID")
	rows := make([][]string, len(rendered.Rows))
	for i, cells := range rendered.Rows {
		row := make([]string, 0, len(cells)+2)
		row = append(row, rendered.LoggedAt[i])
		row = append(row, cells...)
		rows[i] = append(row, rendered.EntryIDs[i])
	}
	fmt.Fprintln(w, renderTable(headers, rows, len(headers)-1))
}

// printEntry shows one entry through its category's schema, followed by
// any values the schema no longer defines.
func printEntry(w io.Writer, cat *types.Category, e *types.Entry) {
	fmt.Fprintf(w, "ID:       %s\n", e.EntryID)
	fmt.Fprintf(w, "Category: %s (%s)\n", cat.Title, cat.CategoryID)
	fmt.Fprintf(w, "Logged:   %s\n", e.LoggedAt.Local().Format(timeLayout))

	rendered := render.Row(cat.Schema, e)
	width := 0
	for _, col := range cat.Schema {
		width = max(width, len(col.Name))
	}
	for i, col := range cat.Schema {
		fmt.Fprintf(w, "  %-*s  %s\n", width, col.Name, rendered[i])
	}
	if orphans := e.Orphans(cat.Schema); len(orphans) > 0 {
		parts := make([]string, len(orphans))
		for i, id := range orphans {
			parts[i] = id + "=" + e.Data[id].String()
		}
		fmt.Fprintf(w, "Removed columns: %s\n", strings.Join(parts, ", "))
	}
}
