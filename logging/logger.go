package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// EnvLogLevel is the name of the environment variable to change the logging
// level.
const EnvLogLevel = "GLOG"

const defaultLevel = zerolog.InfoLevel

var (
	logout = NewConsoleWriter(os.Stdout)
)

// NewConsoleWriter returns the console writer used by every node logger,
// writing to out
func NewConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		// Format the node ID
		FormatPrepare: func(e map[string]interface{}) error {
			if id, ok := e["nodeID"]; ok {
				e["nodeID"] = fmt.Sprintf("[%s]", id)
			}
			return nil
		},
		// Change the order in which things appear
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			"nodeID",
			zerolog.MessageFieldName,
		},
		// Prevent the nodeID from being printed again
		FieldsExclude: []string{"nodeID"},
	}
}

// ParseLevel maps the GLOG values onto zerolog levels. Unknown values fall
// back to the default level.
func ParseLevel(lvl string) zerolog.Level {
	switch lvl {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	case "trace":
		return zerolog.TraceLevel
	case "no":
		return zerolog.Disabled
	default:
		return defaultLevel
	}
}

// GetLogger returns a formatted logger using the given logger id
func GetLogger(id int64) zerolog.Logger {
	return NewLogger(logout, id, ParseLevel(os.Getenv(EnvLogLevel)))
}

// NewLogger builds a node logger writing to w at the given level
func NewLogger(w io.Writer, id int64, level zerolog.Level) zerolog.Logger {
	return NewBaseLogger(w, level).
		With().
		Str("nodeID", strconv.FormatInt(id, 10)).
		Logger()
}

// NewBaseLogger is a logger not tied to a node, components running several
// nodes add the nodeID field themselves
func NewBaseLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}
