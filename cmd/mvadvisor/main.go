package main

import (
	"os"

	"mv-advisor/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
