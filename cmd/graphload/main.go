package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/graphload/internal/cli"
	_ "github.com/JonMunkholm/graphload/internal/core/datasets" // Register all datasets
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, debug.Stack())
			os.Exit(cli.ExitGeneralError)
		}
	}()

	// Values already in the environment win over .env
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	os.Exit(cli.Execute(os.Args[1:], os.Stderr))
}
