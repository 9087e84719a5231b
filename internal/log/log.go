/*************************************************************************
 * bcproxy — a BatMUD BC-mode translating proxy
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package log is a trimmed adaptation of the teacher's ingest/log: a
// level-gated logger that can emit either RFC5424-structured lines
// (via crewjam/rfc5424, with KV/KVErr helpers for structured-data
// params) or, in raw mode, a plain timestamp-prefixed line. One file
// writer plus any number of additional io.WriteCloser sinks are
// supported; there is no UDP relay or log-rotation support here, since
// bcproxy has exactly one log stream and no multi-ingester fan-out.
package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

// Level gates which calls actually produce output.
type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
	FATAL
)

func (l Level) String() string {
	switch l {
	case OFF:
		return "OFF"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	case FATAL:
		return "FATAL"
	}
	return "UNKNOWN"
}

func (l Level) Valid() bool {
	return l >= OFF && l <= FATAL
}

func (l Level) priority() rfc5424.Priority {
	switch l {
	case DEBUG:
		return rfc5424.User | rfc5424.Debug
	case INFO:
		return rfc5424.User | rfc5424.Info
	case WARN:
		return rfc5424.User | rfc5424.Warning
	case ERROR:
		return rfc5424.User | rfc5424.Error
	case CRITICAL:
		return rfc5424.User | rfc5424.Crit
	case FATAL:
		return rfc5424.User | rfc5424.Emergency
	}
	return rfc5424.User | rfc5424.Debug
}

// LevelFromString parses a config-file level name, case-insensitively.
func LevelFromString(s string) (Level, error) {
	switch strings.ToUpper(s) {
	case "OFF":
		return OFF, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "CRITICAL":
		return CRITICAL, nil
	case "FATAL":
		return FATAL, nil
	}
	return OFF, ErrInvalidLevel
}

var (
	ErrNotOpen      = errors.New("logger is not open")
	ErrInvalidLevel = errors.New("log level is invalid")
)

const defaultAppName = "bcproxy"

// Logger is a multi-writer, level-gated logger. It is safe for
// concurrent use by every connection goroutine.
type Logger struct {
	mtx      sync.Mutex
	wtrs     []io.WriteCloser
	lvl      Level
	hot      bool
	raw      bool
	hostname string
	appname  string
}

// NewFile opens (creating if needed, appending otherwise) f as the
// sole initial writer.
func NewFile(f string) (*Logger, error) {
	fout, err := os.OpenFile(f, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0660)
	if err != nil {
		return nil, err
	}
	return New(fout), nil
}

// New wraps wtr at level INFO.
func New(wtr io.WriteCloser) *Logger {
	host, _ := os.Hostname()
	l := &Logger{
		wtrs:     []io.WriteCloser{wtr},
		lvl:      INFO,
		hot:      true,
		hostname: host,
		appname:  defaultAppName,
	}
	return l
}

// NewDiscard builds a Logger that drops everything; useful in tests.
func NewDiscard() *Logger {
	return New(discardCloser{})
}

// EnableRawMode switches output to a plain "timestamp LEVEL message"
// line instead of RFC5424 framing.
func (l *Logger) EnableRawMode() {
	l.raw = true
}

// AddWriter adds another sink that receives every logged line.
func (l *Logger) AddWriter(wtr io.WriteCloser) error {
	if wtr == nil {
		return errors.New("nil writer")
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err := l.ready(); err != nil {
		return err
	}
	l.wtrs = append(l.wtrs, wtr)
	return nil
}

// Close closes every writer and marks the logger unusable.
func (l *Logger) Close() (err error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err = l.ready(); err != nil {
		return
	}
	l.hot = false
	for _, w := range l.wtrs {
		if lerr := w.Close(); lerr != nil {
			err = lerr
		}
	}
	return
}

func (l *Logger) ready() error {
	if !l.hot || len(l.wtrs) == 0 {
		return ErrNotOpen
	}
	return nil
}

// SetLevelString sets the level from a config-file string.
func (l *Logger) SetLevelString(s string) error {
	lvl, err := LevelFromString(s)
	if err != nil {
		return err
	}
	return l.SetLevel(lvl)
}

func (l *Logger) SetLevel(lvl Level) error {
	if !lvl.Valid() {
		return ErrInvalidLevel
	}
	l.mtx.Lock()
	l.lvl = lvl
	l.mtx.Unlock()
	return nil
}

func (l *Logger) GetLevel() Level {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.lvl
}

func (l *Logger) Debugf(f string, args ...interface{}) { l.outputf(DEBUG, f, args...) }
func (l *Logger) Infof(f string, args ...interface{})  { l.outputf(INFO, f, args...) }
func (l *Logger) Warnf(f string, args ...interface{})  { l.outputf(WARN, f, args...) }
func (l *Logger) Errorf(f string, args ...interface{}) { l.outputf(ERROR, f, args...) }

// Fatalf logs at FATAL and terminates the process with exit code -1.
func (l *Logger) Fatalf(f string, args ...interface{}) {
	l.FatalfCode(-1, f, args...)
}

func (l *Logger) FatalfCode(code int, f string, args ...interface{}) {
	l.outputf(FATAL, f, args...)
	os.Exit(code)
}

func (l *Logger) Debug(msg string, sds ...rfc5424.SDParam) { l.outputStructured(DEBUG, msg, sds...) }
func (l *Logger) Info(msg string, sds ...rfc5424.SDParam)  { l.outputStructured(INFO, msg, sds...) }
func (l *Logger) Warn(msg string, sds ...rfc5424.SDParam)  { l.outputStructured(WARN, msg, sds...) }
func (l *Logger) Error(msg string, sds ...rfc5424.SDParam) { l.outputStructured(ERROR, msg, sds...) }

// Fatal logs at FATAL with structured params and exits with code -1.
func (l *Logger) Fatal(msg string, sds ...rfc5424.SDParam) {
	l.FatalCode(-1, msg, sds...)
}

func (l *Logger) FatalCode(code int, msg string, sds ...rfc5424.SDParam) {
	l.outputStructured(FATAL, msg, sds...)
	os.Exit(code)
}

func (l *Logger) outputf(lvl Level, f string, args ...interface{}) {
	l.mtx.Lock()
	skip := l.lvl == OFF || lvl < l.lvl
	l.mtx.Unlock()
	if skip {
		return
	}
	l.write(time.Now(), lvl, fmt.Sprintf(f, args...), nil)
}

func (l *Logger) outputStructured(lvl Level, msg string, sds []rfc5424.SDParam) {
	l.mtx.Lock()
	skip := l.lvl == OFF || lvl < l.lvl
	l.mtx.Unlock()
	if skip {
		return
	}
	l.write(time.Now(), lvl, msg, sds)
}

func (l *Logger) write(ts time.Time, lvl Level, msg string, sds []rfc5424.SDParam) {
	line := l.render(ts, lvl, msg, sds)
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err := l.ready(); err != nil {
		return
	}
	for _, w := range l.wtrs {
		io.WriteString(w, line)
		io.WriteString(w, "\n")
	}
}

func (l *Logger) render(ts time.Time, lvl Level, msg string, sds []rfc5424.SDParam) string {
	if l.raw {
		return ts.UTC().Format(time.RFC3339) + " " + lvl.String() + " " + msg
	}
	m := rfc5424.Message{
		Priority:  lvl.priority(),
		Timestamp: ts,
		Hostname:  l.hostname,
		AppName:   l.appname,
		Message:   []byte(msg),
	}
	if len(sds) > 0 {
		m.StructuredData = []rfc5424.StructuredData{{ID: "bc@1", Parameters: sds}}
	}
	b, err := m.MarshalBinary()
	if err != nil {
		return ts.UTC().Format(time.RFC3339) + " " + lvl.String() + " " + msg
	}
	return string(b)
}

// Write implements io.Writer so *Logger can back a standard library
// log.Logger or similar, bypassing level gating entirely.
func (l *Logger) Write(b []byte) (int, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err := l.ready(); err != nil {
		return 0, err
	}
	for _, w := range l.wtrs {
		w.Write(b)
	}
	return len(b), nil
}

type discardCloser struct{}

func (discardCloser) Write(b []byte) (int, error) { return len(b), nil }
func (discardCloser) Close() error                { return nil }

// KV builds a structured-data parameter from a name and arbitrary
// value (stringified unless it's already a string).
func KV(name string, value interface{}) rfc5424.SDParam {
	if s, ok := value.(string); ok {
		return rfc5424.SDParam{Name: name, Value: s}
	}
	return rfc5424.SDParam{Name: name, Value: fmt.Sprintf("%v", value)}
}

// KVErr is KV("error", err).
func KVErr(err error) rfc5424.SDParam {
	return KV("error", err)
}
