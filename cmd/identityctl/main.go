package main

import (
	"os"

	"identity-service/internal/logger"
)

func main() {
	logger.Init(logger.Options{Level: "warn", Format: "text", Output: os.Stderr})

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
