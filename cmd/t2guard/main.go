package main

import (
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/t2linux-tools/t2guard/cmd/t2guard/app"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
