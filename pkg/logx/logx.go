// Package logx provides leveled, component-scoped logging for the bot.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger writes timestamped, leveled messages for one component.
type Logger struct {
	component string
	logger    *log.Logger
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Global debug configuration, initialized from the environment.
//
//nolint:gochecknoglobals // process-wide debug switch
var (
	debugEnabled bool
	debugDomains map[string]bool // nil = all domains
	debugMu      sync.RWMutex
)

func init() { //nolint:gochecknoinits // env var initialization
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugEnabled = true
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugDomains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			debugDomains[strings.TrimSpace(d)] = true
		}
	}
}

// NewLogger creates a logger scoped to the given component name.
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0), // stderr keeps stdout clean for CLI use
	}
}

// SetDebug overrides the environment-derived debug switch.
func SetDebug(enabled bool) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugEnabled = enabled
}

// IsDebugEnabled reports whether debug logging is on for the given component.
func IsDebugEnabled(component string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	if !debugEnabled {
		return false
	}
	if debugDomains == nil {
		return true
	}
	return debugDomains[component]
}

func (l *Logger) log(level Level, format string, args ...any) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("%s [%s] %s: %s", ts, level, l.component, msg)
}

// Debug logs a debug message if debug logging is enabled for this component.
func (l *Logger) Debug(format string, args ...any) {
	if IsDebugEnabled(l.component) {
		l.log(LevelDebug, format, args...)
	}
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}
