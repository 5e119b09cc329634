// Package ui renders refresh progress, results and run history for the terminal.
//
// Styling goes through a small lipgloss [Palette]; the render functions return plain strings so the CLI
// decides where they are written. Colors degrade to plain text when output is not a terminal.
package ui
