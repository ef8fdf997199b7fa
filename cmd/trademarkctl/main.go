package main

import (
	"os"

	"finitefield.org/trademark-web/cmd/trademarkctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
