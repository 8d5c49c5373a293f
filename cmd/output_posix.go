//go:build !windows

package cmd

const (
	// statusLineFormat is the status line format. Content is truncated and
	// padded to exactly 80 characters, the minimum width of a VT100 terminal.
	statusLineFormat = "\r%-80.80s"
	// statusLineClearFormat is the format for clearing the status line.
	statusLineClearFormat = statusLineFormat + "\r"
)
