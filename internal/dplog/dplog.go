// Package dplog is the single logging facade of the master stack, used by
// the fdl and dp packages and by cmd/dpmasterd. It wraps charmbracelet/log so
// that PROFIBUS.debug (0/1/2) maps onto a handful of named, leveled
// sub-loggers instead of each package reaching for its own writer.
package dplog

import (
	"os"

	"github.com/charmbracelet/log"
)

// Level mirrors the PROFIBUS.debug config option: 0 warn, 1 info, 2 debug.
type Level int

const (
	LevelWarn Level = 0
	LevelInfo Level = 1
	LevelDebug Level = 2
)

var root = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05.000",
})

// SetLevel applies PROFIBUS.debug to the shared root logger.
func SetLevel(l Level) {
	switch l {
	case LevelDebug:
		root.SetLevel(log.DebugLevel)
	case LevelInfo:
		root.SetLevel(log.InfoLevel)
	default:
		root.SetLevel(log.WarnLevel)
	}
}

// For returns a sub-logger tagged with subsystem, e.g. dplog.For("fdl").
func For(subsystem string) *log.Logger {
	return root.With("subsystem", subsystem)
}
