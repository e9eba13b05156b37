//go:build !linux

package gps

import (
	"io"
	"time"

	"github.com/tarm/serial"
)

func openSerial(path string, baud int) (io.ReadWriteCloser, error) {
	return serial.OpenPort(&serial.Config{
		Name:        path,
		Baud:        baud,
		ReadTimeout: time.Second,
	})
}
