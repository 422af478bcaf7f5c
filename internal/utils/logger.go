package utils

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var logFile io.Writer

// InitLogger configures the global logger. With a log file the output is
// JSON lines appended to that file, otherwise a console writer on stderr.
func InitLogger(debug bool, path string) error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		logFile = f
		log.Logger = zerolog.New(f).With().Timestamp().Logger()
		return nil
	}
	SetLogOutput(os.Stderr)
	return nil
}

func SetLogOutput(w io.Writer) {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.DateTime,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// HoldConsole buffers console logging while something else owns the
// terminal. release restores the previous logger and prints what was held.
// A log file is left alone.
func HoldConsole() (release func()) {
	if logFile != nil {
		return func() {}
	}
	return holdConsole(os.Stderr)
}

func holdConsole(out io.Writer) func() {
	prev := log.Logger
	var held bytes.Buffer
	SetLogOutput(zerolog.SyncWriter(&held))
	return func() {
		log.Logger = prev
		out.Write(held.Bytes())
	}
}

// LogFile returns the JSON log file opened by InitLogger, or nil when logging
// goes to the console. Job loggers mirror their events into it.
func LogFile() io.Writer {
	return logFile
}

func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
