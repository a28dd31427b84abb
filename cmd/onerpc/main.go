// Command onerpc hosts JSON-RPC services over HTTP and WebSocket.
//
//	onerpc serve --config onerpc.yaml
//	onerpc methods
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
