// Package logx builds the slog handler set used by the command line tool:
// a console handler for the terminal, optionally JSON, and an optional
// rotating file sink.
package logx

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/alchemy/rotoslog"
	console "github.com/phsym/console-slog"
)

const timeFormat = "2006-01-02 15:04:05.000"

// Rotation defaults for the file sink.
const (
	DefaultMaxSize  = 1 << 20
	DefaultMaxFiles = 7
)

// Options configures New. The zero value logs text at info level to the
// writer passed to New.
type Options struct {
	Level    string // debug, info, warn or error
	Format   string // text or json
	NoColor  bool
	Dir      string // rotating log directory; empty disables the file sink
	MaxSize  uint64 // bytes per log file
	MaxFiles uint64 // rotated files kept
}

// ParseLevel maps a level name to a slog.Level. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	var lv slog.LevelVar
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lv.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", s, err)
	}
	return lv.Level(), nil
}

// New returns a logger writing to w, plus the rotating file sink when
// o.Dir is set.
func New(w io.Writer, o Options) (*slog.Logger, error) {
	level, err := ParseLevel(o.Level)
	if err != nil {
		return nil, err
	}

	var handlers []slog.Handler
	switch o.Format {
	case "", "text":
		handlers = append(handlers, console.NewHandler(w, &console.HandlerOptions{
			NoColor:    o.NoColor,
			Level:      level,
			TimeFormat: timeFormat,
		}))
	case "json":
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	default:
		return nil, fmt.Errorf("log format %q: want text or json", o.Format)
	}

	if o.Dir != "" {
		h, err := fileHandler(o, level)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0]), nil
	}
	return slog.New(Fanout(handlers...)), nil
}

func fileHandler(o Options, level slog.Level) (slog.Handler, error) {
	builder := func(w io.Writer, _ *slog.HandlerOptions) slog.Handler {
		return console.NewHandler(w, &console.HandlerOptions{NoColor: true, Level: level, TimeFormat: timeFormat})
	}
	size, files := o.MaxSize, o.MaxFiles
	if size == 0 {
		size = DefaultMaxSize
	}
	if files == 0 {
		files = DefaultMaxFiles
	}
	h, err := rotoslog.NewHandler(
		rotoslog.LogHandlerBuilder(builder),
		rotoslog.LogDir(o.Dir),
		rotoslog.MaxFileSize(size),
		rotoslog.DateTimeLayout("2006-01-02T15"),
		rotoslog.MaxRotatedFiles(files),
	)
	if err != nil {
		return nil, fmt.Errorf("log dir %s: %w", o.Dir, err)
	}
	return h, nil
}
