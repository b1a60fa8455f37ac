package main

import (
	"os"

	"github.com/leftmike/pgslru/cmd"
)

func main() {
	if cmd.Execute() != nil {
		os.Exit(1)
	}
}
