package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"abstrack/internal/attendance"
	"abstrack/internal/auth"
	"abstrack/internal/config"
	"abstrack/internal/handler"
	"abstrack/internal/httpmiddleware"
	"abstrack/internal/ratelimit"
	"abstrack/internal/roster"
	"abstrack/internal/session"
	"abstrack/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.Migrate(); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	sessions := session.NewManager(
		session.NewRedisStore(redisClient.Client),
		cfg.SessionCookieName, cfg.SessionIdleTTL, cfg.TrustProxyHeaders)
	limiter := ratelimit.NewRedisLimiter(redisClient.Client, ratelimit.Config{
		Window:      cfg.RateWindow,
		MaxAttempts: cfg.RateMaxAttempts,
	})

	authSvc := auth.NewService(auth.NewRepository(db.Client), limiter, cfg.InvitationCode)
	attendanceSvc := attendance.NewService(attendance.NewRepository(db.Client))
	rosterSvc := roster.NewService(roster.NewRepository(db.Client))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.Metrics())
	r.Use(httpmiddleware.NewThrottle(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())
	r.Use(sessions.Load())

	if !cfg.TrustProxyHeaders {
		// ClientIP falls back to the socket peer, so a spoofed
		// X-Forwarded-For cannot dodge the login rate limiter.
		_ = r.SetTrustedProxies(nil)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	handler.New(sessions, authSvc, attendanceSvc, rosterSvc).Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}
