// Package logs builds the process logger.
package logs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"

	"github.com/era-ai/era/pkg/types"
)

// New returns a logger writing text records to w and, when config.File is
// set, JSON records to that file. The returned closer releases the file and
// is never nil.
func New(config types.LoggingConfig, w io.Writer) (*slog.Logger, io.Closer, error) {
	level := new(slog.LevelVar)
	if err := level.UnmarshalText([]byte(config.Level)); err != nil && config.Level != "" {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", config.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	handlers := []slog.Handler{slog.NewTextHandler(w, opts)}
	var closer io.Closer = nopCloser{}

	if config.File != "" {
		if err := os.MkdirAll(filepath.Dir(config.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
		closer = f
	}

	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
