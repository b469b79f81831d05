package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/marchfield/liveryard/internal/config"
	"github.com/marchfield/liveryard/internal/db"
	"github.com/marchfield/liveryard/internal/email"
	"github.com/marchfield/liveryard/internal/server"
	"github.com/marchfield/liveryard/internal/tasks"
)

var (
	modeFlag        = flag.String("mode", "all", "run mode: api, worker, or all")
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()
	cfg := config.Load()

	if *migrateOnlyFlag {
		if _, err := db.ConnectAndMigrate(cfg.DatabaseDSN); err != nil {
			log.Fatalf("migrate-only failed: %v", err)
		}
		log.Println("migrations completed; exiting as requested")
		return
	}

	dbConn, err := db.ConnectAndMigrate(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	sender := email.NewSender(&cfg)
	runAPI := *modeFlag == "api" || *modeFlag == "all"
	runWorker := *modeFlag == "worker" || *modeFlag == "all"

	var srv *http.Server
	if runAPI {
		srv = &http.Server{
			Addr:    ":" + cfg.Port,
			Handler: server.New(dbConn, &cfg, sender),
		}
		go func() {
			log.Printf("API listening on %s env=%s", srv.Addr, cfg.Env)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("server error: %v", err)
			}
		}()
	}

	var worker *asynqRuntime
	if runWorker {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		processor := tasks.NewTaskProcessor(&cfg, dbConn, sender)
		worker = &asynqRuntime{cfg: &cfg, processor: processor}
		worker.start()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received")

	if worker != nil {
		worker.stop()
	}
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}
	log.Println("Stopped")
}
