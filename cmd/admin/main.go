package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/poikeeper/internal/admin"
	"github.com/dmitrijs2005/poikeeper/internal/logging"
	"github.com/dmitrijs2005/poikeeper/internal/server"
	"github.com/dmitrijs2005/poikeeper/internal/server/config"
)

func main() {

	ctx := context.Background()

	open := func(ctx context.Context) (*admin.Backend, error) {
		cfg := config.LoadConfig()
		db, rm, err := server.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		svc, err := server.NewServices(db, rm, cfg, logging.NewJSONLogger(os.Stderr, cfg.LogLevel))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return &admin.Backend{Users: svc.Users, Close: db.Close}, nil
	}

	var args []string
	if len(os.Args) > 1 {
		args = os.Args[1:2]
	}

	app := admin.NewApp(os.Stdin, os.Stdout, open)
	if err := app.Run(ctx, args); err != nil {
		log.Fatalf("%v", err)
	}

}
