package main

import (
	"os"

	"github.com/sitelens/sitelens/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
