package main

import (
	"os"

	"github.com/auvlog/lcm2smat/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
