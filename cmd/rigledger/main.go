package main

import (
	"os"

	"github.com/wonny/rigledger/cmd/rigledger/commands"
)

// main is the entry point for the rigledger CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/rigledger [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
