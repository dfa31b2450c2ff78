// Command roomctl is a terminal client for the chat relay. It tails a room or sends
// one message into it, using the same session engine as the storefront overlay.
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
