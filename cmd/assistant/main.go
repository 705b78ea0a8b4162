// assistant: interactive voice and text client for the P2P lending
// conversational backend.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lenddesk/voicepipe/internal/config"
	"github.com/lenddesk/voicepipe/internal/log"
	"github.com/lenddesk/voicepipe/pkg/assistant"
	"github.com/lenddesk/voicepipe/pkg/audioio"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	logLevel := flag.String("log-level", "", "Log level override: debug, info, warn, error")
	listDevices := flag.Bool("list-devices", false, "List capture devices and exit")
	flag.Parse()

	// Missing .env is fine; the environment may already be set.
	godotenv.Load()

	if *listDevices {
		names, err := audioio.ListCaptureDevices()
		if err != nil {
			log.Init("info")
			log.Error("device enumeration failed", "error", err)
			os.Exit(1)
		}
		for _, name := range names {
			os.Stdout.WriteString(name + "\n")
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Init("info")
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	log.Init(cfg.LogLevel)

	app, err := assistant.New(cfg)
	if err != nil {
		log.Error("startup error", "error", err)
		os.Exit(1)
	}
	if err := app.Init(); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("runtime error", "error", err)
		os.Exit(1)
	}
}
