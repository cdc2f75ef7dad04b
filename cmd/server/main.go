// Command server runs the chat relay.
//
//	server [flags]                              serve
//	server adduser <identity> <password> [flags] provision a user and exit
package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/securechat/internal/server"
	"github.com/dmitrijs2005/securechat/internal/server/config"
)

func main() {

	ctx := context.Background()
	args := os.Args[1:]

	if len(args) >= 3 && args[0] == "adduser" {
		addUser(ctx, args[1], args[2], args[3:])
		return
	}

	cfg := config.LoadConfig(args)
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}
}

func addUser(ctx context.Context, identity, password string, args []string) {
	cfg := config.LoadConfig(args)
	if cfg.DatabaseDSN == "" {
		log.Fatal("adduser requires a database (-d)")
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	if err := app.AddUser(ctx, identity, password); err != nil {
		log.Printf("adduser: %v", err)
		return
	}
	log.Printf("user %s provisioned", identity)
}
