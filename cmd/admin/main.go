package main

import (
	"log"

	"github.com/kataras/iris/v12"

	"github.com/nice20235/slippers/internal/config"
	"github.com/nice20235/slippers/internal/logger"
	"github.com/nice20235/slippers/internal/server"
)

func main() {
	cfg, err := config.Load("configs")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Init(false)

	app := iris.New()
	server.RegisterAdminRoutes(app, cfg)

	addr := cfg.AdminServer.Addr()
	log.Printf("admin server listening on %s", addr)
	if err := app.Run(iris.Addr(addr)); err != nil {
		log.Fatalf("failed to run admin server: %v", err)
	}
}
