package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/hydronom-io/hydronom/cmd/hydronom-relay/app"
)

func main() {
	app.NewApp().Run()
}
