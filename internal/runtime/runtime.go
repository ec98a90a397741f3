package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chekaru-labs/chekaru-voice/internal/bus"
	"github.com/chekaru-labs/chekaru-voice/internal/config"
	"github.com/chekaru-labs/chekaru-voice/internal/jobstore"
	"github.com/chekaru-labs/chekaru-voice/internal/natsserver"
	"github.com/chekaru-labs/chekaru-voice/internal/pipeline"
	"github.com/chekaru-labs/chekaru-voice/internal/service"
	"github.com/chekaru-labs/chekaru-voice/internal/synth"
	"github.com/chekaru-labs/chekaru-voice/internal/voices"
)

// Runtime wires the speech service together: telemetry, bus, job store,
// synthesis backend, and the HTTP surface.
type Runtime struct {
	cfg         config.Config
	version     string
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	catalog     *voices.Catalog
	bus         *bus.Client
	speech      *service.Service
	jobs        *jobstore.Store
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, version string, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		version: version,
		logger:  logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.version, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()
	r.bus = busClient

	jobs, err := jobstore.Open(ctx, r.cfg.JobStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}
	defer jobs.Close()
	r.jobs = jobs

	synthesizer, err := synth.New(r.cfg.Synth)
	if err != nil {
		return fmt.Errorf("failed to create synthesizer: %w", err)
	}

	r.catalog = voices.New(r.cfg.Voices)
	gen := pipeline.New(synthesizer, r.cfg, r.logger)

	speech := service.New(ctx, r.cfg, busClient, gen, jobs, r.catalog, r.logger)
	if err := speech.Start(); err != nil {
		return fmt.Errorf("failed to start speech service: %w", err)
	}
	defer speech.Close()
	r.speech = speech

	mux := r.routes(metricsHandler)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("synth_mode", r.cfg.Synth.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) routes(metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/voices", r.handleVoices)
	mux.HandleFunc("GET /jobs/{id}", r.handleJob)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	return mux
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready only while the bus connection and the
// speech service subscriptions are both up.
func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.bus.Healthy() && r.speech.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleJob(w http.ResponseWriter, req *http.Request) {
	if r.jobs == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	jobID := req.PathValue("id")
	job, err := r.jobs.GetJob(req.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	events, err := r.jobs.ListJobEvents(req.Context(), jobID, 100)
	if err != nil {
		r.logger.Warn("failed to list job events", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		Job    jobstore.Job     `json:"job"`
		Events []jobstore.Event `json:"events,omitempty"`
	}{Job: job, Events: events}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		r.logger.Warn("failed to encode job", slog.String("error", err.Error()))
	}
}

func (r *Runtime) handleVoices(w http.ResponseWriter, _ *http.Request) {
	if r.catalog == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(r.catalog.List()); err != nil {
		r.logger.Warn("failed to encode voice list", slog.String("error", err.Error()))
	}
}
