// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// FileName is the rolling log file inside the log directory.
	FileName   = "aegistrate.log"
	maxSizeMiB = 10
	maxBackups = 20
)

// Options configures Setup.
type Options struct {
	Level   zerolog.Level // console level
	Dir     string        // empty disables the file sink
	Console io.Writer     // os.Stdout when nil
	NoColor bool
}

// levelWriter drops events below min before passing them to w.
type levelWriter struct {
	w   io.Writer
	min zerolog.Level
}

func (l levelWriter) Write(p []byte) (int, error) { return l.w.Write(p) }

func (l levelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < l.min {
		return len(p), nil
	}
	return l.w.Write(p)
}

// Setup installs the global logger: a console writer at opts.Level and, when
// opts.Dir is set, a rolling JSON file at debug level. The returned closer
// flushes the file sink.
func Setup(opts Options) (io.Closer, error) {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	writers := []io.Writer{levelWriter{
		w:   zerolog.ConsoleWriter{Out: console, TimeFormat: time.DateTime, NoColor: opts.NoColor},
		min: opts.Level,
	}}

	var closer io.Closer = nopCloser{}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, err
		}
		file := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, FileName),
			MaxSize:    maxSizeMiB,
			MaxBackups: maxBackups,
		}
		writers = append(writers, levelWriter{w: file, min: zerolog.DebugLevel})
		closer = file
	}

	zerolog.SetGlobalLevel(min(opts.Level, zerolog.DebugLevel))
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
