package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/photocluster/pkg/texture"
	"github.com/vanderheijden86/photocluster/pkg/visual"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLOR PALETTE - Adaptive colors for light and dark terminals
// ══════════════════════════════════════════════════════════════════════════════

var (
	ColorBgSubtle    = lipgloss.AdaptiveColor{Light: "#E8E8E8", Dark: "#363949"}
	ColorBgHighlight = lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#44475A"}
	ColorText        = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#F8F8F2"}
	ColorMuted       = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#6272A4"}
	ColorPrimary     = lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"}
	ColorSuccess     = lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"}
	ColorWarning     = lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"}
	ColorDanger      = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorMuted)

	selectedStyle = lipgloss.NewStyle().
			Background(ColorBgHighlight).
			Foreground(ColorText)

	statusBarStyle = lipgloss.NewStyle().
			Background(ColorBgSubtle).
			Foreground(ColorText).
			Padding(0, 1)

	messageStyle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Italic(true)
)

// RenderTierBadge returns a fixed-width badge for a texture tier.
func RenderTierBadge(t texture.Tier) string {
	var fg lipgloss.AdaptiveColor
	var label string
	switch t {
	case texture.TierHigh:
		fg, label = ColorSuccess, "HIGH"
	case texture.TierLow:
		fg, label = ColorWarning, "LOW "
	default:
		fg, label = ColorMuted, "----"
	}
	return lipgloss.NewStyle().Foreground(fg).Bold(t == texture.TierHigh).Render(label)
}

// RenderEmphasis draws an emphasis level as a swatch in its palette color.
func RenderEmphasis(p visual.Palette, level int) string {
	if level <= 0 {
		return " "
	}
	c := p.Color(level)
	hex := lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
	return lipgloss.NewStyle().Foreground(hex).Bold(true).Render(fmt.Sprint(level))
}
