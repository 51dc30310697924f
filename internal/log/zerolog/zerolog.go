// SPDX-License-Identifier: Apache-2.0

package zerolog

import (
	"io"
	stdlog "log"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	otelapi "go.opentelemetry.io/otel"

	loglib "github.com/xataio/mystream/pkg/log"
	zerologlib "github.com/xataio/mystream/pkg/log/zerolog"
)

type Config struct {
	LogLevel string
	// JSON disables the console writer and emits raw json lines.
	JSON bool
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.ErrorFieldName = "error.message"
	zerolog.ErrorStackFieldName = "error.stack"
	// the v-level of the zerologr wrapper duplicates the zerolog level
	zerologr.VerbosityFieldName = ""

	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return path.Base(file) + ":" + strconv.Itoa(line)
	}
}

// SetGlobalLogger routes the stdlib log package, the zerolog global logger and
// the opentelemetry internal logger through the logger on input, so
// dependencies logging on their own end up in the same output.
func SetGlobalLogger(logger *zerolog.Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(logger)
	log.Logger = *logger
	zerolog.DefaultContextLogger = logger
	otelapi.SetLogger(zerologr.New(logger))
}

func NewStdLogger(l *zerolog.Logger) loglib.Logger {
	return zerologlib.NewLogger(l)
}

// NewLogger creates a zerolog logger writing to stderr. Trace logs are capped
// at 100 per minute. Debug logs allow a burst of 1000 per minute, after which
// only one in five is kept.
func NewLogger(config *Config) *zerolog.Logger {
	return newLogger(config, os.Stderr)
}

func newLogger(config *Config, out io.Writer) *zerolog.Logger {
	// an unparseable level leaves the logger unfiltered
	level, _ := zerolog.ParseLevel(config.LogLevel)

	if !config.JSON {
		out = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.TimeFormat = time.RFC3339Nano
			w.Out = out
		})
	}

	logger := zerolog.New(out).
		Sample(zerolog.LevelSampler{
			TraceSampler: &zerolog.BurstSampler{
				Burst:  100,
				Period: time.Minute,
			},
			DebugSampler: &zerolog.BurstSampler{
				Burst:       1000,
				Period:      time.Minute,
				NextSampler: &zerolog.BasicSampler{N: 5},
			},
		}).
		With().
		Timestamp().
		Caller().
		Stack().
		Logger().
		Level(level)

	return &logger
}
