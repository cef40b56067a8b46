// Package diag carries positioned problem reports from the preprocessor to
// any number of listeners.
package diag

import (
	"fmt"
	"log/slog"
	"slices"
)

type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Diagnostic is a problem located by a character offset and length.
type Diagnostic struct {
	Message  string
	Start    int
	Length   int
	Severity Severity
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s @ %d+%d: %s", d.Severity, d.Start, d.Length, d.Message)
}

// Listener receives diagnostics as they are raised.
type Listener interface {
	OnError(msg string, start, length int)
	OnWarning(msg string, start, length int)
}

// Sink fans diagnostics out to its listeners in registration order.
type Sink struct {
	listeners []Listener
}

func (s *Sink) Add(l Listener) {
	s.listeners = append(s.listeners, l)
}

// Remove unregisters the first registration of l.
func (s *Sink) Remove(l Listener) {
	if i := slices.Index(s.listeners, l); i >= 0 {
		s.listeners = slices.Delete(s.listeners, i, i+1)
	}
}

func (s *Sink) Error(msg string, start, length int) {
	for _, l := range s.listeners {
		l.OnError(msg, start, length)
	}
}

func (s *Sink) Warning(msg string, start, length int) {
	for _, l := range s.listeners {
		l.OnWarning(msg, start, length)
	}
}

// Report dispatches d by its severity.
func (s *Sink) Report(d Diagnostic) {
	if d.Severity == Warning {
		s.Warning(d.Message, d.Start, d.Length)
		return
	}
	s.Error(d.Message, d.Start, d.Length)
}

// Collector records every diagnostic it receives.
type Collector struct {
	Diagnostics []Diagnostic
}

func (c *Collector) OnError(msg string, start, length int) {
	c.Diagnostics = append(c.Diagnostics, Diagnostic{Message: msg, Start: start, Length: length, Severity: Error})
}

func (c *Collector) OnWarning(msg string, start, length int) {
	c.Diagnostics = append(c.Diagnostics, Diagnostic{Message: msg, Start: start, Length: length, Severity: Warning})
}

// Errors returns the collected diagnostics of severity Error.
func (c *Collector) Errors() []Diagnostic {
	var errs []Diagnostic
	for _, d := range c.Diagnostics {
		if d.Severity == Error {
			errs = append(errs, d)
		}
	}
	return errs
}

// LogListener writes diagnostics to a structured logger.
type LogListener struct {
	Logger *slog.Logger
	Source string
}

func (l *LogListener) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l *LogListener) OnError(msg string, start, length int) {
	l.logger().Error(msg, "source", l.Source, "start", start, "length", length)
}

func (l *LogListener) OnWarning(msg string, start, length int) {
	l.logger().Warn(msg, "source", l.Source, "start", start, "length", length)
}
