package ux

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	phaseStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// StatusBadge renders a colored marker for a workflow status
func StatusBadge(status string) string {
	switch status {
	case "completed", "approved", "auto_approved", "passed":
		return successStyle.Render("✓ " + status)
	case "failed", "rejected", "blocked":
		return failureStyle.Render("✗ " + status)
	case "pending", "in_progress":
		return pendingStyle.Render("… " + status)
	default:
		return dimStyle.Render(status)
	}
}

// PhaseLine renders one row of the phase progress listing
func PhaseLine(tag string, current, completed bool) string {
	switch {
	case current:
		return phaseStyle.Render("→ " + tag)
	case completed:
		return successStyle.Render("✓ ") + tag
	default:
		return dimStyle.Render("  " + tag)
	}
}

// Summary renders a headline with dimmed detail lines underneath
func Summary(headline string, details ...string) string {
	var b strings.Builder
	b.WriteString(headline)
	for _, d := range details {
		fmt.Fprintf(&b, "\n  %s", dimStyle.Render(d))
	}
	return b.String()
}
