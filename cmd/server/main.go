package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"toolbox/internal/api"
	"toolbox/internal/auth"
	"toolbox/internal/config"
	"toolbox/internal/pipeline"
	"toolbox/internal/pocketbase"
	"toolbox/internal/tts"
)

func main() {
	log := newLogger()

	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	// Set Gin mode (default to release mode)
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	authenticator, err := auth.New(cfg.AuthUsername, cfg.AuthPasswordHash, cfg.JWTSecret, cfg.SkipAuth)
	if err != nil {
		log.WithError(err).Fatal("Failed to configure session authentication")
	}
	if cfg.SkipAuth {
		log.Warn("SKIP_AUTH is enabled, password checks are disabled")
	}

	store := pocketbase.New(cfg.PocketBaseURL, cfg.PocketBaseEmail, cfg.PocketBasePassword, cfg.StoreTimeout, log)

	synth, err := tts.NewSynthesizer(context.Background(), cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create synthesis provider")
	}
	log.WithField("provider", synth.Name()).Info("synthesis provider initialized")

	processor := pipeline.New(store, synth, log, cfg.SynthTimeout)

	r := gin.Default()
	r.HandleMethodNotAllowed = true

	// Add CORS middleware for the dashboard
	r.Use(corsMiddleware())

	handler := api.NewHandler(store, processor, authenticator, log)
	api.RegisterRoutes(r, handler)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("toolbox backend running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Detached synthesis jobs must outlive their requests, so the process
	// drains them before exiting.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
	if err := processor.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("pipeline shutdown incomplete")
	}
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	if strings.ToLower(os.Getenv("ENVIRONMENT")) == "production" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// corsMiddleware adds CORS headers and answers preflight requests.
// The origin is echoed back because credentialed requests (the session
// cookie) are not allowed with a wildcard origin.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}
