package main

import (
	"os"

	"github.com/akozyrev/hr-intake-bot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
