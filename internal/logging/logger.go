package logging

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a thin wrapper around the standard log package, styled after
// the teacher's plain log.Printf/fmt.Printf diagnostics, colorized on a
// terminal and duplicated to a rotating file so a device with no log
// shipping still keeps bounded history across deploys.
type Logger struct {
	std *log.Logger
}

// NewLogger builds a Logger that writes to stderr (colorized, if attached
// to a terminal) and, when path is non-empty, to a rotating file at path.
func NewLogger(path string) *Logger {
	fileSink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}

	var out io.Writer
	if path == "" {
		out = os.Stderr
	} else {
		out = io.MultiWriter(os.Stderr, fileSink)
	}

	return &Logger{std: log.New(out, "", log.LstdFlags)}
}

var (
	errColor  = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow)
	infoColor = color.New(color.FgCyan)
)

func (l *Logger) Info(format string, args ...interface{}) {
	l.std.Print(infoColor.Sprintf("INFO  "+format, args...))
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.std.Print(warnColor.Sprintf("WARN  "+format, args...))
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.std.Print(errColor.Sprintf("ERROR "+format, args...))
}

// Fatal logs and exits the process; reserved for the two fatal startup
// conditions in spec §7: missing required config, HLS root creation
// failure.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.std.Fatal(fmt.Sprintf("FATAL "+format, args...))
}
