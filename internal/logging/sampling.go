package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore wraps core with per-level sampling. Each level below Error
// gets its own sampler from cfg.Levels; levels without an entry pass
// unsampled. Error and above are never sampled.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	cores := []zapcore.Core{
		&levelFilterCore{Core: core, allow: func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel }},
	}
	for lvl := TraceLevel; lvl < zapcore.ErrorLevel; lvl++ {
		exact := &levelFilterCore{Core: core, allow: func(l zapcore.Level) bool { return l == lvl }}
		sc, ok := cfg.Levels[lvl]
		if !ok {
			cores = append(cores, exact)
			continue
		}
		cores = append(cores, zapcore.NewSamplerWithOptions(exact, cfg.Tick, sc.Initial, sc.Thereafter))
	}

	return zapcore.NewTee(cores...)
}

// levelFilterCore passes only entries whose level satisfies allow.
type levelFilterCore struct {
	zapcore.Core
	allow func(zapcore.Level) bool
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return c.allow(lvl) && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

// With creates a child core that preserves level filtering.
func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{
		Core:  c.Core.With(fields),
		allow: c.allow,
	}
}
