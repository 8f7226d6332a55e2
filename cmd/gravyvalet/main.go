// Package main is the entry point for the gravyvalet server CLI.
package main

import (
	"os"

	"github.com/CenterForOpenScience/gravyvalet/cmd/gravyvalet/app"
	"github.com/CenterForOpenScience/gravyvalet/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
