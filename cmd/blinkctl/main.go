// Command blinkctl calls a blinkd instance over its unix socket.
package main

import (
	"errors"
	"fmt"
	"os"

	"lautenbacher.net/blinkd/ipc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var fault *ipc.Fault
		if errors.As(err, &fault) {
			fmt.Fprintf(os.Stderr, "%s: %s\n", fault.Kind, fault.Message)
		} else {
			fmt.Fprintln(os.Stderr, "blinkctl:", err)
		}
		os.Exit(1)
	}
}
