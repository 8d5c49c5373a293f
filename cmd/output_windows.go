package cmd

const (
	// statusLineFormat is the status line format. Content is limited to 79
	// characters since carriage return wipes don't work on Windows consoles
	// once the last column has been written.
	statusLineFormat = "\r%-79.79s"
	// statusLineClearFormat is the format for clearing the status line.
	statusLineClearFormat = statusLineFormat + "\r"
)
