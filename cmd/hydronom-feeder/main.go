package main

import (
	"github.com/hydronom-io/hydronom/cmd/hydronom-feeder/app"
)

func main() {
	app.NewApp().Run()
}
