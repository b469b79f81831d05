package main

import (
	"log"

	"github.com/hibiken/asynq"

	"github.com/marchfield/liveryard/internal/config"
	"github.com/marchfield/liveryard/internal/tasks"
)

// asynqRuntime bundles the worker server and the cron scheduler so main can
// start and stop them together.
type asynqRuntime struct {
	cfg       *config.Config
	processor *tasks.TaskProcessor
	server    *asynq.Server
	scheduler *asynq.Scheduler
}

func (w *asynqRuntime) start() {
	w.server = tasks.NewServer(w.cfg)
	mux := tasks.NewServeMux(w.processor)
	go func() {
		log.Println("Worker started")
		if err := w.server.Run(mux); err != nil {
			log.Fatalf("asynq server error: %v", err)
		}
	}()

	scheduler, err := tasks.NewScheduler(w.cfg)
	if err != nil {
		log.Fatalf("scheduler setup failed: %v", err)
	}
	w.scheduler = scheduler
	go func() {
		log.Println("Scheduler started")
		if err := w.scheduler.Run(); err != nil {
			log.Fatalf("asynq scheduler error: %v", err)
		}
	}()
}

func (w *asynqRuntime) stop() {
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	if w.server != nil {
		w.server.Shutdown()
	}
}
