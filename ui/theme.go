package ui

import "github.com/charmbracelet/lipgloss"

type Theme string

const (
	ThemeAuto  Theme = "auto"
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Next flips between light and dark; auto resolves to light first.
func (t Theme) Next() Theme {
	if t == ThemeLight {
		return ThemeDark
	}
	return ThemeLight
}

// Palette holds the visualizer colours, pre-blended onto the terminal
// background.
type Palette struct {
	Pill       lipgloss.Color
	WaveIdle   lipgloss.Color
	WaveActive lipgloss.Color
	Accent     lipgloss.Color
	Error      lipgloss.Color
	Muted      lipgloss.Color
	Connected  lipgloss.Color
}

var (
	lightPalette = Palette{
		Pill:       lipgloss.Color("#F3F4F5"),
		WaveIdle:   lipgloss.Color("#D0D1FB"),
		WaveActive: lipgloss.Color("#8285F4"),
		Accent:     lipgloss.Color("#6366F1"),
		Error:      lipgloss.Color("#DC2626"),
		Muted:      lipgloss.Color("#6B7280"),
		Connected:  lipgloss.Color("#16A34A"),
	}
	darkPalette = Palette{
		Pill:       lipgloss.Color("#141414"),
		WaveIdle:   lipgloss.Color("#343862"),
		WaveActive: lipgloss.Color("#818CF8"),
		Accent:     lipgloss.Color("#818CF8"),
		Error:      lipgloss.Color("#F87171"),
		Muted:      lipgloss.Color("#9CA3AF"),
		Connected:  lipgloss.Color("#4ADE80"),
	}
)

// PaletteFor resolves auto against the terminal's background.
func PaletteFor(t Theme, darkBackground bool) Palette {
	switch t {
	case ThemeLight:
		return lightPalette
	case ThemeDark:
		return darkPalette
	}
	if darkBackground {
		return darkPalette
	}
	return lightPalette
}
