// Package logging configures the process-wide logrus logger and attaches a
// per-request correlation id — an ambient concern left to the gRPC service
// shell, not the filter core.
package logging

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Options configures Init: what gets logged, and where.
type Options struct {
	// Level is parsed with logrus.ParseLevel; "info" when empty.
	Level string

	// JSON selects logrus.JSONFormatter over the default text formatter,
	// for deployments that ship logs to a structured collector.
	JSON bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// Init applies Options to logrus's standard logger.
func Init(o Options) error {
	level := logrus.InfoLevel
	if o.Level != "" {
		parsed, err := logrus.ParseLevel(o.Level)
		if err != nil {
			return err
		}
		level = parsed
	}
	logrus.SetLevel(level)

	if o.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	output := o.Output
	if output == nil {
		output = os.Stderr
	}
	logrus.SetOutput(output)
	return nil
}

type correlationIDKey struct{}

// WithCorrelationID attaches a fresh request id to ctx, or reuses existing
// if present so a retried Check call keeps the same id.
func WithCorrelationID(ctx context.Context) (context.Context, string) {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return context.WithValue(ctx, correlationIDKey{}, id), id
}

// CorrelationID reads back the id WithCorrelationID attached, or "" if
// none was ever set.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// EntryFromContext returns a logrus.Entry pre-populated with the request's
// correlation id, for handlers to enrich with additional fields.
func EntryFromContext(ctx context.Context) *logrus.Entry {
	return logrus.WithField("request_id", CorrelationID(ctx))
}
