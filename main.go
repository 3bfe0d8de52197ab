package main

import (
	"os"

	"github.com/ad-itya07/Dionysus/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
