// Command streamgroup-consumer runs a Redis Streams consumer-group member,
// or publishes a single message for manual testing.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
