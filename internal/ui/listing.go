package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ListItem is one row of a listing.
type ListItem struct {
	Name   string
	Detail string
}

// RenderListing renders a titled box of items, or a muted note when empty.
func RenderListing(title string, items []ListItem, empty string, width int) string {
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	header := TitleStyle.Render(strings.ToUpper(title))
	if len(items) == 0 {
		return BoxStyle(width).Render(lipgloss.JoinVertical(lipgloss.Left, header, SubtitleStyle.Render(empty)))
	}

	lines := make([]string, 0, len(items))
	for i, item := range items {
		name := ParamValueStyle.Render(fmt.Sprintf("%d. %s", i+1, item.Name))
		lines = append(lines, "  "+name)
		if item.Detail != "" {
			lines = append(lines, SubtitleStyle.Render("   "+item.Detail))
		}
	}
	summary := SubtitleStyle.Render(fmt.Sprintf("%d found", len(items)))
	content := lipgloss.JoinVertical(lipgloss.Left, header, summary, RenderHorizontalDivider(width-6, "─"), strings.Join(lines, "\n"))
	return BoxStyle(width).Render(content)
}
