package main

import (
	"os"

	"github.com/wonny/lianban/cmd/ladder/commands"
)

// main is the entry point for the ladder CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/ladder [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
