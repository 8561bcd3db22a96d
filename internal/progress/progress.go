// Package progress builds terminal progress bars for long scans.
package progress

import "github.com/schollz/progressbar/v3"

// New returns a counting bar on stderr, or a silent one when disabled.
// total < 0 renders a spinner.
func New(total int64, desc string, enabled bool) *progressbar.ProgressBar {
	if !enabled {
		return progressbar.DefaultSilent(total, desc)
	}
	return progressbar.Default(total, desc)
}

// Bytes returns a byte-counting bar usable as an io.Writer.
func Bytes(total int64, desc string, enabled bool) *progressbar.ProgressBar {
	if !enabled {
		return progressbar.DefaultBytesSilent(total, desc)
	}
	return progressbar.DefaultBytes(total, desc)
}
