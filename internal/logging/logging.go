// Package logging provides structured, leveled logging carried
// through a context.Context, the way the teacher's
// google.golang.org/appengine/log package carries a request context
// through every log call (log.Debugf(ctx, "...", id)). Since setgraph
// runs outside App Engine, a logrus.Entry with contextual fields
// (source, scrape_id, track_id, run_id) plays the same role the App
// Engine request context played there.
package logging

import (
	"context"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

// base is the process-wide root logger; tests and cmd/setgraph's main
// both call Configure once at startup.
var base = logrus.New()

// Configure sets the base logger's level and output format. level is
// one of logrus's level strings ("debug", "info", "warn", "error");
// an unrecognized value falls back to "info".
func Configure(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
	base.SetFormatter(&logrus.JSONFormatter{})
}

// WithFields returns a new context carrying a logger entry that
// merges fields into any already attached to ctx, so a call chain can
// progressively add source/scrape_id/track_id/run_id without losing
// fields set by an outer caller.
func WithFields(ctx context.Context, fields logrus.Fields) context.Context {
	entry := From(ctx).WithFields(fields)
	return context.WithValue(ctx, ctxKey{}, entry)
}

// From returns the logger entry attached to ctx, or a fresh entry off
// the base logger if none was attached.
func From(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(base)
}

// Debugf, Infof, Warnf, and Errorf log through ctx's attached entry,
// mirroring the teacher's log.Debugf(ctx, format, args...) shape.
func Debugf(ctx context.Context, format string, args ...interface{}) {
	From(ctx).Debugf(format, args...)
}

func Infof(ctx context.Context, format string, args ...interface{}) {
	From(ctx).Infof(format, args...)
}

func Warnf(ctx context.Context, format string, args ...interface{}) {
	From(ctx).Warnf(format, args...)
}

func Errorf(ctx context.Context, format string, args ...interface{}) {
	From(ctx).Errorf(format, args...)
}
