package main

import (
	"os"

	"github.com/flexhaus/bems/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
