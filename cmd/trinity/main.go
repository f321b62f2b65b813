// Command trinity is the Trinity schema version control CLI.
package main

import (
	"os"

	"github.com/trinitydb/trinity/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
