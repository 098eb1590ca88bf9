// Package ui holds the terminal styling shared by the CLI commands.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ryakosh/brain-box/internal/note"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// RenderTitle renders a heading.
func RenderTitle(s string) string { return titleStyle.Render(s) }

// RenderAccent renders identifiers and other values worth drawing the
// eye to.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderFaint renders secondary detail.
func RenderFaint(s string) string { return faintStyle.Render(s) }

// RenderError renders an error message.
func RenderError(s string) string { return errorStyle.Render(s) }

// RenderWarn renders a warning.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderPass renders a success marker.
func RenderPass(s string) string { return passStyle.Render(s) }

// StatusBadge renders a sync status with its conventional color: green
// for clean, yellow for anything pending, red for conflicted.
func StatusBadge(s note.SyncStatus) string {
	switch s {
	case note.StatusClean:
		return passStyle.Render(string(s))
	case note.StatusConflicted:
		return errorStyle.Render(string(s))
	default:
		return warnStyle.Render(string(s))
	}
}
