// Package log provides the engine's single structured logger. It is a
// trimmed adaptation of the logging package used across the davinci-node
// codebase: a package-level zerolog.Logger guarded by a mutex, with leveled
// helpers that take structured key/value pairs rather than pre-formatted
// strings.
package log

import (
	"cmp"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	logger zerolog.Logger
	mu     sync.RWMutex
)

func init() {
	Init(cmp.Or(os.Getenv("GUARDIAN_LOG_LEVEL"), "error"), os.Stderr)
}

// Init (re)configures the package logger. level is one of
// debug/info/warn/error; unrecognised values fall back to info.
func Init(level string, w *os.File) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	mu.Lock()
	defer mu.Unlock()
	logger = zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).
		Level(lvl).
		With().Timestamp().Logger()
}

func get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debugw logs msg at debug level with structured key/value pairs.
func Debugw(msg string, kv ...any) { event(get().Debug(), msg, kv...) }

// Infow logs msg at info level with structured key/value pairs.
func Infow(msg string, kv ...any) { event(get().Info(), msg, kv...) }

// Warnw logs msg at warn level with structured key/value pairs.
func Warnw(msg string, kv ...any) { event(get().Warn(), msg, kv...) }

// Errorw logs msg at error level with structured key/value pairs.
func Errorw(msg string, kv ...any) { event(get().Error(), msg, kv...) }

// event appends kv pairs (key, value, key, value, ...) to e and emits msg.
// A trailing unpaired key is logged under "extra" rather than dropped.
func event(e *zerolog.Event, msg string, kv ...any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	if len(kv)%2 == 1 {
		e = e.Interface("extra", kv[len(kv)-1])
	}
	e.Msg(msg)
}
