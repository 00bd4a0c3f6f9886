package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Param is one key/value line in a banner. A slice keeps display order stable.
type Param struct {
	Key   string
	Value string
}

// Banner is a boxed title with a parameter list.
type Banner struct {
	Title    string // e.g., "tlsecho server"
	Subtitle string // e.g., "v1.0.0 (commit: abc1234)"
	Params   []Param
	Width    int
}

// NewBanner creates a banner sized to the terminal.
func NewBanner(title, subtitle string, params ...Param) *Banner {
	return &Banner{
		Title:    title,
		Subtitle: subtitle,
		Params:   params,
		Width:    GetTerminalWidth(),
	}
}

// SetWidth sets the width for rendering
func (b *Banner) SetWidth(width int) *Banner {
	b.Width = width
	return b
}

// Render returns the styled banner
func (b *Banner) Render() string {
	width := b.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	top := TitleStyle.Render(strings.ToUpper(b.Title))
	if b.Subtitle != "" {
		top = lipgloss.JoinVertical(lipgloss.Left, top, SubtitleStyle.Render(b.Subtitle))
	}
	if len(b.Params) == 0 {
		return BoxStyle(width).Render(top)
	}

	keyWidth := 0
	for _, p := range b.Params {
		keyWidth = max(keyWidth, lipgloss.Width(p.Key)+1)
	}

	lines := make([]string, 0, len(b.Params))
	for _, p := range b.Params {
		key := ParamKeyStyle.Render(padRight(p.Key+":", keyWidth))
		lines = append(lines, key+" "+ParamValueStyle.Render(p.Value))
	}

	divider := RenderHorizontalDivider(width-6, "─")
	content := lipgloss.JoinVertical(lipgloss.Left, top, divider, strings.Join(lines, "\n"))
	return BoxStyle(width).Render(content)
}

// String implements fmt.Stringer
func (b *Banner) String() string {
	return b.Render()
}

func padRight(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
