package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	tableHeaderStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorAccent).
		Align(lipgloss.Center)

	tableBorderStyle = lipgloss.NewStyle().
		Foreground(ColorMuted)

	tableCellStyle = lipgloss.NewStyle().
		Padding(0, 1)
)

// RenderDump re-renders an adapter dump (table name, one tab-separated
// header line, tab-separated rows, trailing "(n rows)") as a styled
// lipgloss table. Falls back to the raw dump when it doesn't parse.
func RenderDump(dump string) string {
	lines := strings.Split(strings.TrimRight(dump, "\n"), "\n")
	if len(lines) < 2 {
		return dump
	}
	title := lines[0]
	headers := strings.Split(lines[1], "\t")

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers(headers...)

	var footer string
	for _, line := range lines[2:] {
		if strings.HasPrefix(line, "(") {
			footer = line
			continue
		}
		t.Row(strings.Split(line, "\t")...)
	}

	out := lipgloss.NewStyle().Bold(true).Render(title) + "\n" + t.Render()
	if footer != "" {
		out += "\n" + lipgloss.NewStyle().Foreground(ColorMuted).Render(footer)
	}
	return out
}
