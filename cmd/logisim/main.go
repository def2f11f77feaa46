// Command logisim runs, renders and streams a demo logic circuit.
//
// Usage:
//
//	logisim run --ticks 32
//	logisim render --out circuit.png --width 1024 --height 512
//	logisim serve --addr :8080 --interval 100ms
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
