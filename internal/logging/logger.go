// Package logging configures zerolog for the server and adapts it to the
// loggers expected by third-party clients.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. DEV gets a console writer, every
// other environment gets JSON lines on stderr.
func Setup(env, level string) {
	SetupWriter(os.Stderr, env, level)
}

func SetupWriter(w io.Writer, env, level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := w
	if env == "DEV" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// LeveledLogger satisfies stripe-go's LeveledLoggerInterface (and any other
// printf style leveled logger) on top of a zerolog.Logger.
type LeveledLogger struct {
	Logger zerolog.Logger
}

func NewLeveledLogger(component string) *LeveledLogger {
	return &LeveledLogger{Logger: log.With().Str("component", component).Logger()}
}

func (l *LeveledLogger) Debugf(format string, v ...interface{}) {
	l.Logger.Debug().Msg(fmt.Sprintf(format, v...))
}

func (l *LeveledLogger) Infof(format string, v ...interface{}) {
	// stripe-go logs every request at info; keep that noise at debug
	l.Logger.Debug().Msg(fmt.Sprintf(format, v...))
}

func (l *LeveledLogger) Warnf(format string, v ...interface{}) {
	l.Logger.Warn().Msg(fmt.Sprintf(format, v...))
}

func (l *LeveledLogger) Errorf(format string, v ...interface{}) {
	l.Logger.Error().Msg(fmt.Sprintf(format, v...))
}
