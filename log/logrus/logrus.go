// Package logrus adapts a *logrus.Entry to chunkcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/chunkcache"
)

var _ chunkcache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New tags every line with component=chunkcache.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "chunkcache")}
}

func (l Logger) entry(f chunkcache.Fields) *logrus.Entry {
	if err, ok := f["err"].(error); ok {
		rest := make(logrus.Fields, len(f))
		for k, v := range f {
			if k != "err" {
				rest[k] = v
			}
		}
		return l.E.WithError(err).WithFields(rest)
	}
	return l.E.WithFields(logrus.Fields(f))
}

func (l Logger) Debug(msg string, f chunkcache.Fields) { l.entry(f).Debug(msg) }
func (l Logger) Info(msg string, f chunkcache.Fields)  { l.entry(f).Info(msg) }
func (l Logger) Warn(msg string, f chunkcache.Fields)  { l.entry(f).Warn(msg) }
func (l Logger) Error(msg string, f chunkcache.Fields) { l.entry(f).Error(msg) }
