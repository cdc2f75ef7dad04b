package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/securechat/internal/client/cli"
	"github.com/dmitrijs2005/securechat/internal/client/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig(os.Args[1:])
	app, err := cli.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}

}
