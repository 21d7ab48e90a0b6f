package main

import (
	"os"

	"propdesk/cmd/propctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
