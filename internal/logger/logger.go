// Package logger is a small leveled logger. Level prefixes are colored when
// writing to a terminal.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	OffLevel
)

var levelNames = map[string]Level{
	"debug": DebugLevel,
	"info":  InfoLevel,
	"warn":  WarnLevel,
	"error": ErrorLevel,
	"off":   OffLevel,
}

// ParseLevel accepts debug, info, warn, error and off.
func ParseLevel(s string) (Level, error) {
	l, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

var (
	std = &Logger{
		logger: log.New(os.Stderr, "", log.LstdFlags),
		level:  InfoLevel,
	}

	debugPrefix = color.New(color.FgCyan).SprintFunc()
	infoPrefix  = color.New(color.FgGreen).SprintFunc()
	warnPrefix  = color.New(color.FgYellow).SprintFunc()
	errorPrefix = color.New(color.FgRed).SprintFunc()
)

type Logger struct {
	mu     sync.Mutex
	logger *log.Logger
	level  Level
}

func SetLevel(level Level) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.level = level
}

// SetOutput redirects the log. Color is disabled unless w is a terminal
// stream.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.logger = log.New(w, "", log.LstdFlags)
	if f, ok := w.(*os.File); !ok || (f != os.Stdout && f != os.Stderr) {
		color.NoColor = true
	}
}

func (l *Logger) printf(level Level, prefix string, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}
	l.logger.Print(prefix + " " + fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...interface{}) {
	std.printf(DebugLevel, debugPrefix("[DEBUG]"), format, v...)
}

func Infof(format string, v ...interface{}) {
	std.printf(InfoLevel, infoPrefix("[INFO]"), format, v...)
}

func Warnf(format string, v ...interface{}) {
	std.printf(WarnLevel, warnPrefix("[WARN]"), format, v...)
}

func Errorf(format string, v ...interface{}) {
	std.printf(ErrorLevel, errorPrefix("[ERROR]"), format, v...)
}
