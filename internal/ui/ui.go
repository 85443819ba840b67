// Package ui provides styled terminal output helpers for the CLI.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // blue
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle = lipgloss.NewStyle().Bold(true)
)

// RenderPass renders s in the success style.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders s in the warning style.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail renders s in the failure style.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderAccent renders s in the accent style.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderDim renders s dimmed.
func RenderDim(s string) string { return dimStyle.Render(s) }

// RenderHeader renders s bold.
func RenderHeader(s string) string { return headerStyle.Render(s) }
