package main

import (
	"os"

	"github.com/hydronom-io/hydronom/cmd/hydronom-ctl/app"
)

func main() {
	if err := app.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
