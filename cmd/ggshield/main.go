package main

import (
	"os"

	"github.com/CEE-TEE/ggshield/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
