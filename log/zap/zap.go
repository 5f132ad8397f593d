// Package zap adapts a *zap.Logger to swrcache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/swrcache"
)

var _ swrcache.Logger = Logger{}

// Logger writes cache events to L. A nil L falls back to zap.NewNop().
type Logger struct{ L *zap.Logger }

func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l.Named("swrcache")}
}

func (z Logger) Debug(msg string, f swrcache.Fields) { z.l().Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f swrcache.Fields)  { z.l().Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f swrcache.Fields)  { z.l().Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f swrcache.Fields) { z.l().Error(msg, fields(f)...) }

func (z Logger) l() *zap.Logger {
	if z.L == nil {
		return zap.NewNop()
	}
	return z.L
}

// fields sorts by name so output is stable; errors go through zap.NamedError.
func fields(f swrcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]zap.Field, 0, len(f))
	for _, k := range names {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
