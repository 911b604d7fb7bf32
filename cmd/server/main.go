package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dpup/prefab"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dpup/wayfinder/internal/cache"
	"github.com/dpup/wayfinder/internal/clients/google"
	"github.com/dpup/wayfinder/internal/clients/location"
	"github.com/dpup/wayfinder/internal/clients/speech"
	"github.com/dpup/wayfinder/internal/config"
	"github.com/dpup/wayfinder/internal/handler"
	"github.com/dpup/wayfinder/internal/lib/announce"
	"github.com/dpup/wayfinder/internal/lib/geo"
	"github.com/dpup/wayfinder/internal/services"
	"github.com/dpup/wayfinder/internal/store"
)

const defaultConfigPath = "wayfinder.yaml"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	appConfig := loadConfig()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := zapLogger.Sugar()

	ctx := context.Background()

	// Route planning with the in-memory cache in front of Google Routes
	if appConfig.Routing.APIKey == "" {
		log.Fatal("Google Routes API key is required (routing.api_key or WAYFINDER_ROUTING__API_KEY)")
	}
	routeCache := cache.NewCache()
	routeCache.StartPeriodicCleanup(ctx, appConfig.Routing.CleanupInterval, logger)

	googleClient := google.NewClientWithHTTPDoer(appConfig.Routing.APIKey, appConfig.Routing.BaseURL, &http.Client{Timeout: 30 * time.Second}).
		WithLanguage(appConfig.Routing.Language)
	planner := services.NewRoutePlanner(googleClient, routeCache, appConfig.Routing.CacheTTL, logger)

	speaker, err := speech.New(appConfig.Speech.Engine, os.Stdout, openAIConfig(appConfig.Speech), speech.CommandPlayer{Command: appConfig.Speech.Player}, logger)
	if err != nil {
		log.Fatalf("Failed to create speaker: %v", err)
	}
	announcer := announce.NewAnnouncer(speaker, logger)

	journal, err := store.Open(appConfig.Journal.Path)
	if err != nil {
		log.Fatalf("Failed to open session journal: %v", err)
	}
	defer func() { _ = journal.Close() }()

	source := location.NewPushSource(logger)
	nav := services.NewNavigationService(source, announcer, planner, services.NavigationOptions{
		Thresholds:               appConfig.Navigation.Thresholds(),
		MaxRecalculations:        appConfig.Navigation.MaxRecalculations,
		MaxRecalculationFailures: appConfig.Navigation.MaxRecalculationFailures,
		HeartbeatInterval:        appConfig.Navigation.HeartbeatInterval,
		Journal:                  journal,
		Notifier:                 services.NewLogNotifier(logger),
		Logger:                   logger,
	})

	publisher := cache.NewProgressPublisher(ctx, appConfig.Publisher.RedisURL, appConfig.Publisher.Channel, appConfig.Publisher.TTL, logger)
	defer func() { _ = publisher.Close() }()
	if publisher.Enabled() {
		services.PublishSnapshots(ctx, nav, publisher, logger)
	}

	places := services.PlaceResolverFunc(func(name string) (geo.Point, bool) {
		place, ok := appConfig.FindPlace(name)
		return place.Point(), ok
	})
	dispatcher := services.NewCommandDispatcher(nav, planner, places, source, logger)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/", gin.WrapF(homepageHandler))
	handler.NewSessionHandler(nav, planner, source, dispatcher, journal, appConfig.Journal.HistoryLimit, logger).Register(engine)

	log.Printf("Wayfinder navigation server starting")
	log.Printf("Speech engine: %s", appConfig.Speech.Engine)
	log.Printf("Saved places: %d", len(appConfig.Places))
	log.Printf("Progress publishing: %v", publisher.Enabled())

	// Server configuration (port, etc.) is loaded by prefab from prefab.yaml/env vars
	server := prefab.New(
		prefab.WithGRPCReflection(),
		prefab.WithHTTPHandlerFunc("/", engine.ServeHTTP),
	)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server.ServiceRegistrar(), healthServer)
	healthServer.SetServingStatus("wayfinder", grpc_health_v1.HealthCheckResponse_SERVING)

	// Start the server (blocks until shutdown)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	_ = nav.Stop()
}

// loadConfig reads wayfinder.yaml (or $WAYFINDER_CONFIG) and WAYFINDER_ env vars
func loadConfig() *config.Config {
	path := os.Getenv("WAYFINDER_CONFIG")
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}

	appConfig, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return appConfig
}

func openAIConfig(cfg config.SpeechConfig) speech.OpenAIConfig {
	return speech.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.Model,
		Voice:  cfg.Voice,
		Speed:  cfg.Speed,
		Volume: cfg.Volume,
	}
}

// homepageHandler serves a plain-text index at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	index := `wayfinder - pedestrian turn-by-turn guidance

Sessions:
  POST   /api/v1/sessions            Start navigating ({"destination": {"lat": .., "lng": ..}} or {"route": ..})
  GET    /api/v1/sessions/current    Current progress snapshot
  DELETE /api/v1/sessions/current    Stop navigating

Input:
  POST   /api/v1/locations           Report a fix ({"lat": .., "lng": ..}) or a failure ({"error": ".."})
  POST   /api/v1/commands            Voice command ({"utterance": "take me to home"})

Route:
  GET    /api/v1/route.geojson       Active route as GeoJSON
  GET    /api/v1/route.kml           Active route as KML

History:
  GET    /api/v1/history             Recent sessions
  GET    /api/v1/history/{id}/events Events for a session
`

	if _, err := fmt.Fprint(w, index); err != nil {
		slog.Error("Failed to write homepage", "error", err)
	}
}
