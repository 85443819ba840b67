// Command tasksync is the offline-first task sync client.
//
// It keeps a local task database in sync with the tasksync server using a
// cursor-based delta protocol, coordinates with other local client
// processes so only one of them talks to the network, and imports task
// files dropped into an inbox directory.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
