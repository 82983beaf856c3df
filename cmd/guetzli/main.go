// Command guetzli runs the asynchronous image-recompression service: it
// accepts JPEG/PNG uploads over HTTP, probes and recompresses them with
// external command-line tools, and garbage-collects aged entries.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/guetzli/guetzli"
	"github.com/hazyhaar/guetzli/shield"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := guetzli.LoadConfig(*configPath)
	if err != nil {
		slog.Error("startup: load config", "error", err)
		os.Exit(1)
	}

	base, err := cfg.ResolvedStorageBase()
	if err != nil {
		slog.Error("startup: resolve storage base", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		slog.Error("startup: create storage base", "path", base, "error", err)
		os.Exit(1)
	}

	store := guetzli.NewStore(base)
	probe := guetzli.NewProbe()
	transformer := guetzli.NewTransformer()
	coordinator := guetzli.NewJobCoordinator(store, probe, transformer, cfg.Parallelism, cfg.MaxUploadBytes())

	coordinator.RecoverStale()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	janitor := guetzli.NewJanitor(
		store,
		time.Duration(cfg.JanitorIntervalMinutes)*time.Minute,
		time.Duration(cfg.JanitorMaxAgeHours)*time.Hour,
	)
	go janitor.Run(ctx)

	resource := guetzli.NewResource(coordinator)

	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	r.Get("/healthz", handleHealthz(coordinator))
	resource.Routes(r)

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: r,
	}

	go func() {
		slog.Info("guetzli listening", "addr", cfg.Listen, "storage_base", base)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("guetzli shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

// healthzBody is the /healthz liveness response: process status plus a
// snapshot of entry counts by state, pure operability surface with no
// bearing on the pipeline's own semantics.
type healthzBody struct {
	Status  string                 `json:"status"`
	Entries map[guetzli.Status]int `json:"entries"`
}

func handleHealthz(coordinator *guetzli.JobCoordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := coordinator.StatusCounts()
		if err != nil {
			slog.Error("healthz: status counts failed", "error", err)
			counts = map[guetzli.Status]int{}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(healthzBody{Status: "ok", Entries: counts})
	}
}
