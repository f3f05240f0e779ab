// Package logging configures the global zerolog logger for the gyre process.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the package-level zerolog logger. Console output goes to
// stderr so stdout stays reserved for the run summary and the completion
// sentinel. When file is non-empty the full JSON stream is also written there.
// The returned closer releases the log file and is safe to call when no file
// was configured.
func Init(level, file string) (func(), error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	closer := func() {}
	var sink io.Writer = console
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		sink = zerolog.MultiLevelWriter(console, f)
		closer = func() { _ = f.Close() }
	}

	log.Logger = zerolog.New(sink).With().Timestamp().Logger()
	return closer, nil
}
