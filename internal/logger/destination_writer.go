package logger

import (
	"bytes"
	"io"
	"time"
)

// destinationWriter feeds an in-process consumer such as the web log view.
type destinationWriter struct {
	w   io.Writer
	buf bytes.Buffer
}

func (d *destinationWriter) log(t time.Time, level Level, format string, args ...interface{}) {
	d.buf.Reset()
	writeTime(&d.buf, t, false)
	writeLevel(&d.buf, level, false)
	writeContent(&d.buf, format, args)
	d.w.Write(d.buf.Bytes()) //nolint:errcheck
}

func (d *destinationWriter) close() {
}
