//go:build !linux

package scanner

import (
	"os"
	"time"
)

// ctimeOf falls back to mtime on platforms without a portable ctime field.
func ctimeOf(info os.FileInfo) time.Time {
	return info.ModTime()
}
