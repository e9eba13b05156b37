package logger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// destinationFile appends plain entries to a file, creating its directory
// on first use.
type destinationFile struct {
	path string
	file *os.File
	buf  bytes.Buffer
}

func newDestinationFile(path string) (destination, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("log file %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log file %s: %w", path, err)
	}
	return &destinationFile{path: path, file: f}, nil
}

func (d *destinationFile) log(t time.Time, level Level, format string, args ...interface{}) {
	d.buf.Reset()
	writeTime(&d.buf, t, false)
	writeLevel(&d.buf, level, false)
	writeContent(&d.buf, format, args)
	d.buf.WriteTo(d.file) //nolint:errcheck
}

func (d *destinationFile) close() {
	d.file.Sync()  //nolint:errcheck
	d.file.Close() //nolint:errcheck
}
