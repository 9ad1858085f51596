package main

import (
	"os"

	"github.com/singlet-dev/singlet/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
