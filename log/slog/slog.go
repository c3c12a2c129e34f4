// Package slog adapts a *slog.Logger to chunkcache.Logger.
package slog

import (
	"context"
	stdslog "log/slog"
	"slices"

	"github.com/unkn0wn-root/chunkcache"
)

var _ chunkcache.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

func New(l *stdslog.Logger) Logger { return Logger{L: l.With("component", "chunkcache")} }

func (s Logger) log(lvl stdslog.Level, msg string, f chunkcache.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, lvl) {
		return
	}
	s.L.LogAttrs(ctx, lvl, msg, attrs(f)...)
}

func (s Logger) Debug(msg string, f chunkcache.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f chunkcache.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f chunkcache.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f chunkcache.Fields) { s.log(stdslog.LevelError, msg, f) }

func attrs(f chunkcache.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	out := make([]stdslog.Attr, 0, len(f))
	for k, v := range f {
		out = append(out, stdslog.Any(k, v))
	}
	slices.SortFunc(out, func(a, b stdslog.Attr) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	return out
}
