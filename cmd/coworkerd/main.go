// Command coworkerd is the headless session daemon. The desktop shell spawns
// it and speaks newline-delimited JSON over stdin/stdout.
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
