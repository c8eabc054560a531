package main

import (
	"os"

	"github.com/embedware/sizedeltas/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
