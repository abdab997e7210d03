// Command logbook logs entries against user-defined category schemas.
package main

import (
	"os"

	"github.com/mesh-intelligence/logbook/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
