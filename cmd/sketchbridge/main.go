package main

import (
	"os"

	"sketchbridge/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
