package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/vulnwatch/internal/application"
	appanalysis "github.com/bryanwahyu/vulnwatch/internal/application/analysis"
	appscans "github.com/bryanwahyu/vulnwatch/internal/application/scans"
	"github.com/bryanwahyu/vulnwatch/internal/config"
	domainanalysis "github.com/bryanwahyu/vulnwatch/internal/domain/analysis"
	domain "github.com/bryanwahyu/vulnwatch/internal/domain/scans"
	openaiclient "github.com/bryanwahyu/vulnwatch/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/vulnwatch/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/vulnwatch/internal/infra/db/postgres"
	"github.com/bryanwahyu/vulnwatch/internal/infra/executor/nuclei"
	"github.com/bryanwahyu/vulnwatch/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/vulnwatch/internal/infra/storage"
	"github.com/bryanwahyu/vulnwatch/internal/infra/ws"
	mw "github.com/bryanwahyu/vulnwatch/internal/middleware"
)

// repository is the union of the two persistence ports, satisfied by both
// SQL implementations.
type repository interface {
	domain.Repository
	domainanalysis.Repository
}

func main() {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		logrus.Fatalf("config load error: %v", err)
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	}
	log.SetFormatter(&logrus.JSONFormatter{})

	ctx := context.Background()

	// connect database
	var db *sql.DB
	var repo repository
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		if err := postgresp.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("postgres schema error: %v", err)
		}
		repo = postgresp.NewScanRepository(db)
	default:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		if err := mysqlp.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("mysql schema error: %v", err)
		}
		repo = mysqlp.NewScanRepository(db)
	}
	defer db.Close()

	// init minio (optional)
	var artifacts domain.ArtifactStore
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
			log,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		artifacts = store
	}

	// init AI client (optional)
	var aiClient domainanalysis.Client
	if cfg.AI.Enabled && cfg.AI.APIKey != "" {
		aiClient = openaiclient.NewClient(cfg.AI.APIKey, cfg.AI.Model)
	}
	analysisSvc := appanalysis.NewService(aiClient, log)

	// init runner
	runner := nuclei.NewRunner(nuclei.Config{
		Path:           cfg.Nuclei.Path,
		TemplatesPath:  cfg.Nuclei.TemplatesPath,
		TempDir:        cfg.Scanner.TempDir,
		RateLimit:      cfg.Nuclei.RateLimit,
		BulkSize:       cfg.Nuclei.BulkSize,
		DefaultTimeout: time.Duration(cfg.Scanner.TimeoutSeconds) * time.Second,
	})
	if !runner.Available() {
		log.Warn("nuclei binary not found, scans will produce placeholder findings")
	}

	// init websocket hub
	hub := ws.NewHub(
		time.Duration(cfg.Websocket.PingIntervalSeconds)*time.Second,
		time.Duration(cfg.Websocket.StaleAfterSeconds)*time.Second,
	)
	go hub.Run()

	// init service
	svc := appscans.NewService(
		repo,
		runner,
		hub,
		analysisSvc,
		repo,
		artifacts,
		application.SystemClock{},
		cfg.Scanner.MaxConcurrent,
		log,
	)

	// init router
	mux := chi.NewRouter()
	allowedOrigins := cfg.CORS.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(mw.Logging(log))
	mux.Use(mw.RateLimit(60, 1))
	mux.Mount("/", httpserver.NewRouter(svc, analysisSvc, hub))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Infof("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down server...")

	hub.Shutdown()

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Errorf("shutdown error: %v", err)
	}
}
