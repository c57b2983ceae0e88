// Package style provides shared UI styling primitives including brand colors
// and icons for consistent visual presentation across the CLI.
package style

import (
	"github.com/charmbracelet/lipgloss"
	"go.trai.ch/trellis/internal/core/domain"
)

// Brand Colors.
var (
	Iris   = lipgloss.Color("#8B5CF6")
	Slate  = lipgloss.Color("#667085")
	White  = lipgloss.Color("#FFFFFF")
	Green  = lipgloss.Color("#22A06B")
	Red    = lipgloss.Color("#D93025")
	Yellow = lipgloss.Color("#F59E0B")
)

// Icons.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Dot     = "●"
	Circle  = "○"
	Arrow   = "→"
)

// StatusIcon returns the icon and color used for a run status.
func StatusIcon(s domain.RunStatus) (string, lipgloss.Color) {
	switch s {
	case domain.RunSucceeded:
		return Check, Green
	case domain.RunFailed:
		return Cross, Red
	case domain.RunCanceled:
		return Warning, Yellow
	case domain.RunRunning:
		return Dot, Iris
	default:
		return Circle, Slate
	}
}

// ReleaseColor returns the color used for a release gate state.
func ReleaseColor(s domain.ReleaseState) lipgloss.Color {
	switch s {
	case domain.ReleasePublished:
		return Green
	case domain.ReleaseFailed:
		return Red
	case domain.ReleaseConfigured:
		return Iris
	case domain.ReleaseConfiguring, domain.ReleaseDeploying:
		return Yellow
	default:
		return Slate
	}
}
