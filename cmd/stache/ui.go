package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

func renderPass(s string) string   { return passStyle.Render(s) }
func renderWarn(s string) string   { return warnStyle.Render(s) }
func renderAccent(s string) string { return accentStyle.Render(s) }
func renderMuted(s string) string  { return mutedStyle.Render(s) }

// renderRow pads each cell to its column width.
func renderRow(widths []int, cells ...string) string {
	out := ""
	for i, cell := range cells {
		style := lipgloss.NewStyle()
		if i < len(widths) {
			style = style.Width(widths[i])
		}
		out += style.Render(cell)
	}
	return out
}

func renderHeader(widths []int, cells ...string) string {
	styled := make([]string, len(cells))
	for i, cell := range cells {
		styled[i] = headerStyle.Render(cell)
	}
	return renderRow(widths, styled...)
}

// formatSize renders a byte count the way status output shows it.
func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
