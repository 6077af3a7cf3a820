package main

import (
	"flag"
	"log"
	"os"

	"RigWatch/internal/di"
	"RigWatch/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s readings=%s alerts=%s", cfg.Environment, cfg.Kafka.ReadingsTopic, cfg.Kafka.AlertsTopic)

	// Wire DI: initialize all dependencies. Reference data must load here;
	// a detector core without thresholds or rules has nothing to do.
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
