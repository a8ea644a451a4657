// Command fxpcp drives server-to-server (FXP) file transfers from the
// command line.
//
//	fxpcp copy --source ftps://user:pw@alpha:21 --dest ftps://user:pw@beta:21 /out/file.bin /in/file.bin
//	fxpcp list --source ftps://user:pw@alpha:21 /out
//	fxpcp features --source ftp://alpha:21
package main

import (
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}
