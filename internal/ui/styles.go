// Package ui renders terminal output for the fms command.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#86c166"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#b26a00", Dark: "#f0b429"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ff6b6b"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#1565c0", Dark: "#74b9ff"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#8a8a8a"}

	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	BoldStyle   = lipgloss.NewStyle().Bold(true)
)

func init() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor honours NO_COLOR and CLICOLOR_FORCE, and otherwise colors
// only terminal output.
func ShouldUseColor() bool {
	if termenv.EnvNoColor() {
		return false
	}
	if os.Getenv("CLICOLOR_FORCE") != "" && os.Getenv("CLICOLOR_FORCE") != "0" {
		return true
	}
	return IsTerminal()
}

// DisableColor forces plain output.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderBold(s string) string   { return BoldStyle.Render(s) }

// RenderState colors an engine state name.
func RenderState(state string) string {
	switch state {
	case "ready":
		return RenderPass(state)
	case "syncing":
		return RenderWarn(state)
	default:
		return RenderMuted(state)
	}
}

// RenderAvailability colors a spot availability value.
func RenderAvailability(a string) string {
	switch a {
	case "Available":
		return RenderPass(a)
	case "Full", "Closed":
		return RenderFail(a)
	default:
		return RenderWarn(a)
	}
}
