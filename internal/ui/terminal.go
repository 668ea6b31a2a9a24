// Package ui holds small terminal presentation helpers for the CLI.
package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	ansiReset  = "\033[0m"
	ansiCyan   = "\033[36m"
	ansiYellow = "\033[33m"
	ansiGreen  = "\033[32m"
)

// ShouldUseColor returns true when ANSI colors should be used on stdout.
// It respects NO_COLOR, CLICOLOR_FORCE, CLICOLOR, and TTY detection.
func ShouldUseColor() bool {
	// https://no-color.org — any non-empty value disables color.
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	// CLICOLOR_FORCE=1 forces color even without a TTY.
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	// CLICOLOR=0 explicitly disables color.
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	// Default: color if stdout is a terminal.
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Topic renders a topic name, colored per topic when enabled so interleaved
// streams are easy to tell apart.
func Topic(name string, color bool) string {
	if !color {
		return name
	}
	switch name {
	case "forum-posts":
		return ansiCyan + name + ansiReset
	case "forum-votes":
		return ansiYellow + name + ansiReset
	default:
		return ansiGreen + name + ansiReset
	}
}
