// Command reklamabotd runs the broadcast engine's background processes:
// the posting engine, the scheduled-ad publisher, and the maintenance
// loops. It exposes only /healthz and /metrics over HTTP — starting and
// controlling broadcasts is a caller-supplied concern (spec.md's Non-goals
// exclude the real HTTP/API surface), so the orchestrator here is wired for
// an embedding caller, not exported over the wire.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jaxongr/reklamabot/internal/clock"
	"github.com/jaxongr/reklamabot/internal/config"
	"github.com/jaxongr/reklamabot/internal/core"
	"github.com/jaxongr/reklamabot/internal/engine"
	"github.com/jaxongr/reklamabot/internal/logging"
	"github.com/jaxongr/reklamabot/internal/maintenance"
	"github.com/jaxongr/reklamabot/internal/metrics"
	"github.com/jaxongr/reklamabot/internal/orchestrator"
	"github.com/jaxongr/reklamabot/internal/publisher"
	"github.com/jaxongr/reklamabot/internal/sessionclient"
	"github.com/jaxongr/reklamabot/internal/storage"
	"github.com/jaxongr/reklamabot/internal/storage/memory"
	"github.com/jaxongr/reklamabot/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.New(cfg.Logging)
	log.Logger = log.Logger.WithField("component", "reklamabotd").Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("open storage failed")
	}
	defer closeRepo()

	met := metrics.New()
	clk := clock.NewReal()

	// No production SessionClient ships in this tree — the real messaging
	// platform wire protocol is a caller-supplied concern (spec.md's
	// Non-goals). Embedders inject their own SessionClient implementation
	// in place of sessionclient.NewFake here; Resilient still wraps it so
	// connect throttling and per-session breaking apply regardless.
	client := sessionclient.NewResilient(sessionclient.NewFake(), cfg.ResilientConfig())

	eng := engine.New(repo, client, clk, cfg.EngineConfig(), log, met)
	orch := orchestrator.New(repo, client, eng, log)

	pub := publisher.New(repo, clk, log, func(ctx context.Context, tenantID, adID string) error {
		_, err := orch.StartPosting(ctx, tenantID, adID)
		return err
	})
	stopPublisher, err := pub.Run()
	if err != nil {
		log.WithError(err).Fatal("starting scheduled publisher failed")
	}
	defer stopPublisher()

	loops := maintenance.New(repo, clk, log)
	stopLoops, err := loops.Start()
	if err != nil {
		log.WithError(err).Fatal("starting maintenance loops failed")
	}
	defer stopLoops()

	logDescriptor(log, orch)
	logDescriptor(log, pub)
	logDescriptor(log, loops)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("health/metrics listener starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("health/metrics listener failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("health/metrics listener shutdown failed")
	}
}

// logDescriptor logs a component's architectural placement at startup, the
// way the teacher's process boot logs each system.Service's descriptor
// before starting it.
func logDescriptor(log *logging.Logger, c core.DescriptorProvider) {
	d := c.Descriptor()
	log.WithFields(map[string]interface{}{
		"name":         d.Name,
		"domain":       d.Domain,
		"layer":        d.Layer,
		"capabilities": d.Capabilities,
	}).Info("component started")
}

// postgresDialTimeout/postgresDialInterval govern the initial Postgres dial
// only: cold start polls at a fixed interval until this deadline elapses,
// rather than a fixed attempt count, since a container's readiness time
// varies with the host it's scheduled on, not with a retry counter. This is
// distinct from resilience.Retry's per-session jittered backoff used for
// steady-state session connects once the process is already up.
const (
	postgresDialTimeout  = 30 * time.Second
	postgresDialInterval = 2 * time.Second
)

func openRepository(ctx context.Context, cfg *config.Config, log *logging.Logger) (storage.Repository, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		store, err := dialPostgres(ctx, cfg.Database.DSN, log)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return memory.New(), func() {}, nil
	}
}

// dialPostgres polls postgres.Open until it succeeds or postgresDialTimeout
// elapses, logging each failed attempt so a slow-starting container doesn't
// look like a silent hang.
func dialPostgres(ctx context.Context, dsn string, log *logging.Logger) (*postgres.Store, error) {
	deadline := time.Now().Add(postgresDialTimeout)
	for attempt := 1; ; attempt++ {
		store, err := postgres.Open(ctx, dsn)
		if err == nil {
			return store, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		log.WithField("attempt", attempt).WithError(err).Warn("postgres not ready yet, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(postgresDialInterval):
		}
	}
}
