package main

import (
	"os"

	"github.com/reposync/reposync/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
