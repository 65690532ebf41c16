// Package log wraps a package-level zerolog logger with a small field-chaining API.
//
// Callers attach structured context with WithField, WithFields or WithError and
// finish the chain with a level method:
//
//	log.WithField("room_id", roomID).WithError(err).Error("tombstone failed")
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
)

// InitLogger replaces the package logger.
// When pretty is true output is human readable, otherwise one JSON object per line.
func InitLogger(w io.Writer, level zerolog.Level, pretty bool) {
	if w == nil {
		w = os.Stderr
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	mu.Lock()
	logger = zerolog.New(w).With().Timestamp().Logger().Level(level)
	mu.Unlock()
}

// Logger returns the current package logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Entry carries structured fields until a level method writes them.
type Entry struct {
	fields map[string]interface{}
	err    error
}

func newEntry() *Entry {
	return &Entry{fields: make(map[string]interface{})}
}

// WithField starts an entry with a single field.
func WithField(key string, value interface{}) *Entry {
	return newEntry().WithField(key, value)
}

// WithFields starts an entry with several fields.
func WithFields(fields map[string]interface{}) *Entry {
	return newEntry().WithFields(fields)
}

// WithError starts an entry carrying err.
func WithError(err error) *Entry {
	return newEntry().WithError(err)
}

// WithField adds a field to the entry.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	e.fields[key] = value
	return e
}

// WithFields adds every field to the entry.
func (e *Entry) WithFields(fields map[string]interface{}) *Entry {
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// WithError attaches err to the entry.
func (e *Entry) WithError(err error) *Entry {
	e.err = err
	return e
}

func (e *Entry) emit(ev *zerolog.Event, msg string) {
	if ev == nil {
		return
	}
	if e.err != nil {
		ev = ev.Err(e.err)
	}
	ev.Fields(e.fields).Msg(msg)
}

func (e *Entry) Debug(msg string) {
	l := Logger()
	e.emit(l.Debug(), msg)
}

func (e *Entry) Info(msg string) {
	l := Logger()
	e.emit(l.Info(), msg)
}

func (e *Entry) Warn(msg string) {
	l := Logger()
	e.emit(l.Warn(), msg)
}

func (e *Entry) Error(msg string) {
	l := Logger()
	e.emit(l.Error(), msg)
}

func (e *Entry) Debugf(format string, args ...interface{}) { e.Debug(fmt.Sprintf(format, args...)) }
func (e *Entry) Infof(format string, args ...interface{})  { e.Info(fmt.Sprintf(format, args...)) }
func (e *Entry) Warnf(format string, args ...interface{})  { e.Warn(fmt.Sprintf(format, args...)) }
func (e *Entry) Errorf(format string, args ...interface{}) { e.Error(fmt.Sprintf(format, args...)) }

func Debug(msg string) { newEntry().Debug(msg) }
func Info(msg string)  { newEntry().Info(msg) }
func Warn(msg string)  { newEntry().Warn(msg) }
func Error(msg string) { newEntry().Error(msg) }
