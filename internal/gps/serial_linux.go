//go:build linux

package gps

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

var unixBauds = map[int]uint32{
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

func baudToUnix(baud int) (uint32, error) {
	spd, ok := unixBauds[baud]
	if !ok {
		return 0, fmt.Errorf("unsupported baud %d", baud)
	}
	return spd, nil
}

// rawTermios switches t to 8N1 without line discipline. Reads block for one
// byte and give up after a second so cancellation is noticed.
func rawTermios(t *unix.Termios, spd uint32) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD | spd
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 10
	t.Ispeed = spd
	t.Ospeed = spd
}

func openSerial(path string, baud int) (io.ReadWriteCloser, error) {
	spd, err := baudToUnix(baud)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd) //nolint:errcheck
		return nil, fmt.Errorf("%s: get termios: %w", path, err)
	}
	rawTermios(t, spd)
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		unix.Close(fd) //nolint:errcheck
		return nil, fmt.Errorf("%s: set termios: %w", path, err)
	}

	return os.NewFile(uintptr(fd), path), nil
}
