// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// CLI style colors using lipgloss
var (
	// StatusOK styles success indicators
	StatusOK = lipgloss.NewStyle().Foreground(lipgloss.Color("42")) // green

	// StatusWarn styles warning indicators
	StatusWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange

	// StatusError styles error indicators
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red

	// StatusInfo styles informational text
	StatusInfo = lipgloss.NewStyle().Foreground(lipgloss.Color("39")) // blue

	// Muted styles secondary/less important text
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray

	// Header styles table headers
	Header = lipgloss.NewStyle().Bold(true)
)

// Symbols for status indicators
const (
	SymbolOK    = "✓"
	SymbolWarn  = "⚠"
	SymbolError = "✗"
)

// IsTerminal reports whether stdout is a terminal. Styling is skipped
// otherwise so piped output stays plain.
func IsTerminal() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func render(style lipgloss.Style, s string) string {
	if !IsTerminal() {
		return s
	}
	return style.Render(s)
}

// RenderOK renders a success message with green checkmark
func RenderOK(msg string) string {
	return render(StatusOK, SymbolOK) + " " + msg
}

// RenderWarn renders a warning message with orange symbol
func RenderWarn(msg string) string {
	return render(StatusWarn, SymbolWarn) + " " + msg
}

// RenderError renders an error message with red X
func RenderError(msg string) string {
	return render(StatusError, SymbolError) + " " + msg
}

// RenderRunStatus colours a run status.
func RenderRunStatus(status string) string {
	switch status {
	case "running":
		return render(StatusInfo, status)
	case "completed":
		return render(StatusOK, status)
	case "cancelled":
		return render(StatusWarn, status)
	case "failed":
		return render(StatusError, status)
	default:
		return status
	}
}

// RenderHeader renders a table header cell.
func RenderHeader(s string) string {
	return render(Header, s)
}
