// Package logger carries a logrus entry through request and task contexts.
// Handlers and tools log through G(ctx) so fields such as tab_id or step
// attached upstream follow every line. Debug lines written with Debugf are
// also mirrored into the request's Collector, which the HTTP API returns as
// debugLogs.
package logger

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Output formats accepted by SetLogFormat. Anything else, including the
// "fmt" default, renders text.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ServiceName is stamped on every line emitted through the global entry.
const ServiceName = "siren"

var (
	// G is shorthand for GetLogger.
	G = GetLogger
	// L is the process-wide entry, used when a context carries none.
	L = logrus.NewEntry(newLogger()).WithField("service", ServiceName)
)

type loggerKey struct{}

// WithLogger stores entry on ctx; later G(ctx) calls return it.
func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, entry.WithContext(ctx))
}

// GetLogger returns the entry stored on ctx, or L bound to ctx.
func GetLogger(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok {
		return entry
	}
	return L.WithContext(ctx)
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	setLoggerFormat(l, FormatText)
	return l
}

func setLoggerFormat(l *logrus.Logger, format string) {
	if format == FormatJSON {
		l.Formatter = &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "logLevel",
				logrus.FieldKeyMsg:   "message",
			},
			TimestampFormat: time.RFC3339Nano,
		}
		return
	}
	l.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339Nano,
		FullTimestamp:   true,
	}
}

// SetLogLevel parses level ("debug", "info", ...) and applies it to L.
func SetLogLevel(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	L.Logger.SetLevel(parsed)
	return nil
}

// SetLogFormat switches L between FormatText and FormatJSON.
func SetLogFormat(format string) {
	setLoggerFormat(L.Logger, format)
}

// SetLogOutput redirects L.
func SetLogOutput(w io.Writer) {
	L.Logger.SetOutput(w)
}
