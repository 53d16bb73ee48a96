package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	ratelimit "github.com/riftlabs/tier-ratelimiter"
	"github.com/riftlabs/tier-ratelimiter/config"
	"github.com/riftlabs/tier-ratelimiter/counterstore"
	"github.com/riftlabs/tier-ratelimiter/httpapi"
	"github.com/riftlabs/tier-ratelimiter/userstore"
)

func main() {
	env, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := dialUserStore(ctx, env)
	if err != nil {
		log.Fatalf("user store connect error: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:       fmt.Sprintf("%s:%d", env.RedisHost, env.RedisPort),
		Password:   env.RedisPassword,
		DB:         env.RedisDB,
		MaxRetries: 3,
	})
	defer func() { _ = redisClient.Close() }()

	counterStore, err := counterstore.New(ctx, redisClient)
	if err != nil {
		log.Fatalf("counter store connect error: %v", err)
	}

	registry := config.Default()
	resolver := ratelimit.Resolver{Config: registry}
	clock := ratelimit.Clock(time.Now)

	engine := ratelimit.Engine{Store: counterStore, Resolver: resolver, Now: clock}
	stats := ratelimit.StatsProjector{Store: counterStore, Resolver: resolver, Now: clock}

	users := userstore.New(db)

	srv := httpapi.NewServer(users, users, engine, stats)
	srv.SetReady(true)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", env.Port),
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		srv.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown failed: %v", err)
		}
	}()

	log.Printf("tier-ratelimiter listening on :%d", env.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	// ListenAndServe returns as soon as Shutdown begins; wait for the drain
	// to finish before the deferred Redis close runs.
	<-shutdownDone
}

// dialUserStore opens the Postgres connection backing the user record
// store, folding the service-role secret into the DSN's credentials rather
// than logging or hard-coding it.
func dialUserStore(ctx context.Context, env config.Env) (*gorm.DB, error) {
	dsn, err := buildDSN(env)
	if err != nil {
		return nil, fmt.Errorf("invalid SUPABASE_URL: %w", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	return db, nil
}

func buildDSN(env config.Env) (string, error) {
	u, err := url.Parse(env.SupabaseURL)
	if err != nil {
		return "", err
	}
	username := "postgres"
	if u.User != nil {
		username = u.User.Username()
	}
	u.User = url.UserPassword(username, env.SupabaseServiceRoleKey)
	return u.String(), nil
}
