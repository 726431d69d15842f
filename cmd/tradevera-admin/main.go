package main

import (
	"os"

	"tradevera/cmd/tradevera-admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
