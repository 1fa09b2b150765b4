package main

import (
	"log"

	"github.com/plutaslab-hq/darkmode-ai-server/app"
	"github.com/plutaslab-hq/darkmode-ai-server/app/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	app.MustInit(cfg)
	router := app.NewRouter()
	router.Run("0.0.0.0:" + cfg.Port)
}
