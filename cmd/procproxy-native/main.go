// Command procproxy-native is the native endpoint binary: it dials the
// controller's loopback port, performs the handshake, and services
// commands until the controller sends EXIT or the socket closes.
package main

import (
	"os"

	"github.com/loopwire/procproxy/internal/nativeendpoint"
)

func main() {
	nativeendpoint.Run(os.Args)
}
