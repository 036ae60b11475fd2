// Command sensordisplay shows a camera feed with the latest reading of each
// configured sensor drawn over it.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
