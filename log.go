package mwgc

import "sync/atomic"

import "github.com/prataprc/golog"

// logok gates every call into golog. It defaults to 0 (disabled): the
// collector's hot path must remain silent unless an embedder explicitly
// opts in, per the "embedded environments often cannot log" constraint.
// When disabled, tracing a phase transition costs one atomic load and
// the format string is never evaluated.
var logok = int64(0)

// LogComponents enable tracing. By default logging is disabled; pass
// "gc", "alloc" or "all" to switch it on for debugging on a workstation.
func LogComponents(components ...string) {
	for _, comp := range components {
		switch comp {
		case "gc", "alloc", "all":
			atomic.StoreInt64(&logok, 1)
		}
	}
}

func debugf(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Debugf(format, v...)
	}
}

func tracef(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Tracef(format, v...)
	}
}

func warnf(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Warnf(format, v...)
	}
}
