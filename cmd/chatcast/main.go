package main

import (
	"os"

	"github.com/Dicklesworthstone/chatcast/cmd/chatcast/cmd"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd.Version = version
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
