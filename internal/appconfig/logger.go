package appconfig

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds a JSON slog logger writing to stdout and, with
// LogToFile, to a rotating file. The returned closer releases the file.
func NewLogger(cfg LoggerConfig) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{
		Level:     levelFromString(cfg.LogLevel),
		AddSource: cfg.IncludeSrc,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				if source, _ := a.Value.Any().(*slog.Source); source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}

	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.LogToFile {
		file := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.CompressOldLogs,
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	return slog.New(slog.NewJSONHandler(out, opts)), closer
}

func levelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
