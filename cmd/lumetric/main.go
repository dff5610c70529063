// Lumetric CLI - configure the SDK and check backend health.
package main

import (
	"os"

	"github.com/lumetric/lumetric-go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
