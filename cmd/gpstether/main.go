// main executable.
package main

import (
	"os"
)

func main() {
	a, ok := newApp(os.Args[1:])
	if !ok {
		os.Exit(1)
	}
	a.Wait()
	if a.failed {
		os.Exit(1)
	}
}
