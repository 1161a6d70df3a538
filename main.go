package main

import (
	"os"

	"github.com/docvault/docvault/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
