package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/no-abramov/todoapi/pkg/storage"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	mutedStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	doneStyle    = lipgloss.NewStyle().Faint(true).Strikethrough(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)

	boxChecked   = "☑"
	boxUnchecked = "☐"
)

func ok(w io.Writer, msg string) {
	fmt.Fprintln(w, successStyle.Render("✔ "+msg))
}

func fail(w io.Writer, msg string) {
	fmt.Fprintln(w, errorStyle.Render("✖ "+msg))
}

func panel(w io.Writer, lines []string) {
	fmt.Fprintln(w, panelStyle.Render(strings.Join(lines, "\n")))
}

func progressBar(done, total, width int) string {
	if total == 0 {
		total = 1
	}
	filled := done * width / total
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + fmt.Sprintf("] %d/%d", done, total)
}

func todoLine(item storage.TodoItem) string {
	title := "(untitled)"
	if item.Title != nil && *item.Title != "" {
		title = *item.Title
	}

	id := mutedStyle.Render(fmt.Sprintf("#%-4d", item.ID))
	if item.IsCompleted {
		return fmt.Sprintf("%s %s %s", successStyle.Render(boxChecked), id, doneStyle.Render(title))
	}
	return fmt.Sprintf("%s %s %s", mutedStyle.Render(boxUnchecked), id, title)
}

func countsHeader(title string, completed, pending int) string {
	return fmt.Sprintf("%s  %s %d  %s %d  %s %d",
		titleStyle.Render(title),
		successStyle.Render("✔"), completed,
		pendingStyle.Render("•"), pending,
		accentStyle.Render("Total"), completed+pending,
	)
}
