package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	churnColor  = lipgloss.Color("#e53935")
	retainColor = lipgloss.Color("#2196F3")
	borderColor = lipgloss.Color("#2a3850")

	titleStyle  = lipgloss.NewStyle().Bold(true).MarginTop(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	churnStyle  = cellStyle.Foreground(churnColor)
	retainStyle = cellStyle.Foreground(retainColor)
)

// renderTable writes a bordered table. highlight, when non-nil, picks a
// style per body cell.
func renderTable(w io.Writer, title string, headers []string, rows [][]string, highlight func(row, col int) *lipgloss.Style) {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if highlight != nil {
				if s := highlight(row, col); s != nil {
					return *s
				}
			}
			return cellStyle
		})
	if title != "" {
		fmt.Fprintln(w, titleStyle.Render(title))
	}
	fmt.Fprintln(w, t.Render())
}

func churnLabel(churn bool) string {
	if churn {
		return "churn"
	}
	return "stay"
}

func churnCell(churn bool) *lipgloss.Style {
	if churn {
		return &churnStyle
	}
	return &retainStyle
}
