package monitoring

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// DefaultLogPath is where the application log is appended when no other path
// is configured.
const DefaultLogPath = "log/application.log"

// OpenLogFile points the standard logger at an append-only file, creating its
// directory when needed. When mirror is non-nil every line is also written
// there. Closing the returned io.Closer restores stderr output.
func OpenLogFile(path string, mirror io.Writer) (io.Closer, error) {
	if path == "" {
		path = DefaultLogPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	var w io.Writer = f
	if mirror != nil {
		w = io.MultiWriter(f, mirror)
	}
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lmsgprefix)
	log.SetPrefix("- ")

	return &logFile{f: f}, nil
}

type logFile struct {
	f *os.File
}

func (l *logFile) Close() error {
	log.SetOutput(os.Stderr)
	log.SetPrefix("")
	log.SetFlags(log.LstdFlags)
	return l.f.Close()
}
