// Package zap adapts a *zap.Logger to chunkcache.Logger.
package zap

import (
	"slices"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/chunkcache"
)

var _ chunkcache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New names the logger "chunkcache".
func New(l *zap.Logger) Logger { return Logger{L: l.Named("chunkcache")} }

func (z Logger) Debug(msg string, f chunkcache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f chunkcache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f chunkcache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f chunkcache.Fields) { z.L.Error(msg, fields(f)...) }

// fields emits keys in sorted order; errors use zap.Error so they render as "error".
func fields(f chunkcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	ks := make([]string, 0, len(f))
	for k := range f {
		ks = append(ks, k)
	}
	slices.Sort(ks)
	out := make([]zap.Field, 0, len(f))
	for _, k := range ks {
		if err, ok := f[k].(error); ok && k == "err" {
			out = append(out, zap.Error(err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
