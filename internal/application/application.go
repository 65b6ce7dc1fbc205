package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/studiolink/session-service/internal/config"
	"github.com/studiolink/session-service/internal/database"
	"github.com/studiolink/session-service/internal/handler"
	"github.com/studiolink/session-service/internal/media"
	"github.com/studiolink/session-service/internal/router"
	"github.com/studiolink/session-service/internal/service"
	"github.com/studiolink/session-service/internal/storage/postgres"
	"github.com/studiolink/session-service/internal/storage/redisstore"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// API is the HTTP + WebSocket API application.
type API struct {
	cfg       *config.Config
	srv       *http.Server
	db        *gorm.DB
	rdb       *redis.Client
	hub       *service.EventHub
	admission *service.AdmissionService
}

// NewAPI creates the API application: validates config, runs migrations,
// opens Postgres and Redis, builds services and router.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	logger, _ := zap.NewProduction()
	if cfg.AppEnv == "development" {
		logger, _ = zap.NewDevelopment()
	}

	sessionStore := postgres.NewSessionStore(db)
	participantStore := postgres.NewParticipantStore(db)
	directory := postgres.NewDirectory(db)
	requestStore := redisstore.New(rdb)
	issuer := media.NewIssuer(cfg.MediaAppID, cfg.MediaSecret)
	hub := service.NewEventHub(cfg.WSReadBufferSize, cfg.WSWriteBufferSize, cfg.WSMaxMessageSize, logger)
	ws := &service.WSConfig{BaseURL: cfg.WSBaseURL}

	sessionSvc := service.NewSessionService(sessionStore, participantStore, directory, hub, cfg, logger)
	admissionSvc := service.NewAdmissionService(sessionStore, participantStore, directory, requestStore, hub, cfg, logger)
	participantSvc := service.NewParticipantService(sessionStore, participantStore, directory, issuer, hub, ws, cfg, logger)

	sessionHandler := handler.NewSessionHandler(sessionSvc)
	admissionHandler := handler.NewAdmissionHandler(admissionSvc)
	participantHandler := handler.NewParticipantHandler(participantSvc)
	eventsWS := handler.NewEventsWSHandler(hub, sessionSvc, participantSvc, logger)
	health := handler.NewHealthHandler()

	r := router.New(sessionHandler, admissionHandler, participantHandler, eventsWS, health)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{cfg: cfg, srv: srv, db: db, rdb: rdb, hub: hub, admission: admissionSvc}, nil
}

// Run starts the HTTP server and the request sweeper, blocks until ctx is
// cancelled, then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	addr := a.srv.Addr
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", addr)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Ready:         %s/ready", base)
	log.Printf("  Sessions:      %s/sessions", base)
	log.Printf("  WebSocket:     ws://%s:%s/ws/sessions/:session_id/:user_id", host, a.cfg.HTTPPort)

	// Periodic hygiene for abandoned join requests. Read paths re-validate
	// expiry on their own; this only reclaims storage.
	go func() {
		ticker := time.NewTicker(a.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.admission.Sweep(ctx)
			}
		}
	}()

	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return a.rdb.Close()
}
