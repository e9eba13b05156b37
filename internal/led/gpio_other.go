//go:build !linux

package led

import "fmt"

func openGPIO(pin int) (line, error) {
	return nil, fmt.Errorf("gpio not supported on this platform")
}
