// main is the entry point of the xray CLI and server.
package main

import (
	"os"

	"github.com/huangsam/xray/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
