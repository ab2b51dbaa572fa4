// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serviceName = "nebs-backend"

// Options controls where and how verbosely logs are written.
type Options struct {
	Level      string // error | warn | info | debug
	Env        string // development | production | test
	Serverless bool
	Dir        string // log directory for file output; defaults to ./logs
}

// Init replaces the global logger. Function hosts get console output only since
// their filesystem is read-only; long-running processes also write
// combined.log and error.log, falling back to console if the files cannot be opened.
func Init(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}

	var w io.Writer
	switch {
	case opts.Serverless:
		w = console
	default:
		files, ferr := openFiles(opts.Dir)
		if ferr != nil {
			w = console
			defer func() {
				log.Warn().Err(ferr).Msg("Failed to set up file logging, using console only")
			}()
			break
		}
		writers := files
		if opts.Env == "production" {
			writers = append(writers, os.Stdout)
		} else {
			writers = append(writers, console)
		}
		w = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()
	log.Logger = logger
	return logger
}

func openFiles(dir string) ([]io.Writer, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	combined, err := os.OpenFile(filepath.Join(dir, "combined.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	errFile, err := os.OpenFile(filepath.Join(dir, "error.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		combined.Close()
		return nil, err
	}
	return []io.Writer{combined, errorOnly{w: errFile}}, nil
}

// errorOnly forwards error-and-above events and drops the rest.
type errorOnly struct {
	w io.Writer
}

func (e errorOnly) Write(p []byte) (int, error) {
	return e.w.Write(p)
}

func (e errorOnly) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.ErrorLevel {
		return len(p), nil
	}
	return e.w.Write(p)
}
