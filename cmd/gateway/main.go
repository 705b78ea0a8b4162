// gateway: WebSocket service exposing the lending assistant to
// browser clients, with Prometheus metrics on a sidecar listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/lenddesk/voicepipe/internal/config"
	"github.com/lenddesk/voicepipe/internal/log"
	"github.com/lenddesk/voicepipe/internal/observability"
	"github.com/lenddesk/voicepipe/pkg/assistant"
	"github.com/lenddesk/voicepipe/pkg/gateway"
	"github.com/lenddesk/voicepipe/pkg/voice"
)

var version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	port := flag.Int("port", 8080, "HTTP server port")
	obsAddr := flag.String("obs-addr", ":9090", "Metrics and health listen address")
	debug := flag.Bool("debug", false, "Enable request logging")
	flag.Parse()

	godotenv.Load()

	if envPort := os.Getenv("PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", port)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Init("info")
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)
	logger := log.L()

	builder, err := assistant.NewGatewayBuilder(cfg)
	if err != nil {
		log.Error("startup error", "error", err)
		os.Exit(1)
	}

	metrics := gateway.NewMetrics("voicepipe")
	hub := gateway.NewHub(func(sessionID string) (*voice.Pipeline, error) {
		return builder.TextPipeline(sessionID)
	}, metrics, logger)

	app := fiber.New(fiber.Config{
		AppName:               "voicepipe-gateway",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if *debug {
		app.Use(fiberlogger.New())
	}

	hub.RegisterRoutes(app)
	api := app.Group("/api")
	hub.RegisterAPIRoutes(api)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": version,
			"clients": hub.GetStats().ClientCount,
		})
	})

	obs := observability.NewServer(*obsAddr, metrics.Handler())
	obs.Start()

	go func() {
		addr := fmt.Sprintf(":%d", *port)
		log.Info("starting gateway",
			"addr", addr,
			"ws", fmt.Sprintf("ws://localhost:%d/ws/chat", *port),
		)
		if err := app.Listen(addr); err != nil {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	obs.Shutdown(ctx)
}
