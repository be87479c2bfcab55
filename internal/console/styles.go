package console

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	primaryColor   = lipgloss.Color("#FF6B6B")
	secondaryColor = lipgloss.Color("#4ECDC4")
	mutedColor     = lipgloss.Color("#6C757D")
	fgColor        = lipgloss.Color("#EAEAEA")
)

type styles struct {
	tag        lipgloss.Style
	routingKey lipgloss.Style
	body       lipgloss.Style
	muted      lipgloss.Style
}

// newStyles binds the palette to r so color support follows the writer r
// was created for.
func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		tag: r.NewStyle().
			Foreground(primaryColor).
			Bold(true),
		routingKey: r.NewStyle().
			Foreground(secondaryColor).
			Italic(true),
		body: r.NewStyle().
			Foreground(fgColor),
		muted: r.NewStyle().
			Foreground(mutedColor),
	}
}
