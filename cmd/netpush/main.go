// Command netpush pushes configuration to, and runs commands on, network equipment.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
