package main

import (
	"github.com/kopichain/order-view-svc/internal/app"
	"github.com/kopichain/order-view-svc/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
