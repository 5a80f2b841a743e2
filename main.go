package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"civicspotter/collab"
	"civicspotter/config"
	"civicspotter/controllers"
	"civicspotter/dedup"
	"civicspotter/engine"
	"civicspotter/idgen"
	"civicspotter/logging"
	"civicspotter/routes"
	"civicspotter/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init("", false)
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(filepath.Join(cfg.Storage.DataPath, "logs"), os.Getenv("VERBOSE") != "")

	issueStore, err := buildStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize issue store")
	}

	generator := idgen.New(cfg.IDGen.CounterFile,
		idgen.WithLockTimeout(cfg.IDGen.LockTimeout),
		idgen.WithActiveSet(issueStore),
	)

	geocoder := collab.NewNominatimGeocoder(cfg.Geocode.BaseURL, cfg.Geocode.UserAgent)
	authority, err := collab.NewDirectoryAuthorityFinder(cfg.Authority.DirectoryFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load authority directory")
	}

	detector := dedup.New(issueStore, geocoder, cfg.Dedup.ThresholdMeters)
	eng := engine.New(issueStore, generator, detector, engine.Collaborators{
		Extractor: collab.NewLocationExtractor(geocoder),
		Authority: authority,
		Notifier: collab.NewSMTPNotifier(collab.SMTPConfig{
			Host:       cfg.Email.Host,
			Port:       cfg.Email.Port,
			User:       cfg.Email.User,
			Password:   cfg.Email.Password,
			OverrideTo: cfg.Email.OverrideTo,
		}),
		Composer:  collab.NewTemplateComposer(),
		Publisher: collab.NewWebhookPublisher(cfg.Outreach.WebhookURL),
	})

	if cfg.Redis.Addr != "" {
		if err := config.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, submission rate limiting disabled")
		} else {
			log.Info().Msg("Connected to Redis")
		}
	}

	uploadDir := filepath.Join(cfg.Storage.DataPath, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create upload directory")
	}

	go runSweeper(eng, cfg.Sweep.Interval)

	r := gin.Default()
	r.Use(cors.Default())

	ic := controllers.NewIssueController(eng, uploadDir)
	routes.IssueRoutes(r, ic, cfg.Redis.LimitKey, cfg.Redis.DailyCap)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
	if err := r.Run(cfg.Server.Addr); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}

func buildStore(cfg *config.AppConfig) (store.Store, error) {
	if cfg.Storage.Backend == "mongo" {
		db, err := config.ConnectDB(cfg.Storage.MongoURI, cfg.Storage.MongoDB)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("MongoDB connection established")
		return store.NewMongoStore(db), nil
	}
	return store.NewFileStore(filepath.Join(cfg.Storage.DataPath, "issues"))
}

// runSweeper periodically advances approved issues so that approvals granted
// while a side effect was down are eventually picked up.
func runSweeper(eng *engine.Engine, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		if err := eng.Sweep(ctx); err != nil {
			log.Error().Err(err).Msg("periodic sweep failed")
		}
		cancel()
	}
}
