package main

import (
	"os"

	"github.com/chaos-io/bgstrip/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
