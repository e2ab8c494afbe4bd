package main

import (
	"os"

	"github.com/kaos-tools/kaos-ui/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
