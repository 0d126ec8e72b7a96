package main

import (
	"os"

	"github.com/eaasxt/farmhand/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
