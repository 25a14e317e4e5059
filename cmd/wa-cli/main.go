package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/openclaw/wa-bridge/internal/cli"
)

func main() {
	_ = godotenv.Load()

	baseURL := os.Getenv("WA_BRIDGE_URL")
	token := os.Getenv("WA_BRIDGE_TOKEN")

	if err := cli.Run(os.Args[1:], baseURL, token, os.Stdout); err != nil {
		os.Exit(1)
	}
}
