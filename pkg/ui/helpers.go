package ui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// truncate shortens s to maxWidth terminal cells, ending with an ellipsis.
func truncate(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	const suffix = "…"
	if maxWidth <= runewidth.StringWidth(suffix) {
		return runewidth.Truncate(suffix, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth-runewidth.StringWidth(suffix), "") + suffix
}

// padRight pads s with spaces to width terminal cells.
func padRight(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// fit truncates and pads s to exactly width cells.
func fit(s string, width int) string {
	return padRight(truncate(s, width), width)
}
