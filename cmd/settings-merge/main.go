package main

import (
	"os"

	"github.com/Fuabioo/settings-merge/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
