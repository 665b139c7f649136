package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aibbs/internal/ai/actions"
	"aibbs/internal/ai/audit"
	"aibbs/internal/ai/chain"
	"aibbs/internal/ai/llm"
	"aibbs/internal/ai/memory"
	"aibbs/internal/ai/orchestrator"
	"aibbs/internal/ai/persona"
	"aibbs/internal/ai/scheduler"
	"aibbs/internal/ai/throttle"
	"aibbs/internal/ai/workers"
	"aibbs/internal/config"
	"aibbs/internal/db"
	"aibbs/internal/handlers"
	"aibbs/internal/middleware"
	"aibbs/internal/router"
	"aibbs/internal/store"
	"aibbs/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	dispatchQueue   = 256
	shutdownTimeout = 10 * time.Second
)

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if settings.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Database
	gdb, err := db.Open(settings)
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		return err
	}
	st := store.New(gdb)
	cfg := config.NewStore(settings)

	gw := llm.New(settings.AI, log.Named("llm"))
	rnd := utils.NewTimeRand()
	sink := audit.NewRecorder(st, log.Named("ai.audit"))
	acts := actions.New(st, cfg, sink, log.Named("ai.actions"))
	wk := workers.New(gw, log.Named("ai.workers"))
	mem := memory.New(st, log.Named("ai.memory"))
	gen := persona.NewGenerator(gw, persona.NewLoader(settings.AI.PersonaDir), st, rnd, log.Named("ai.persona"))

	cooldowns, closeCooldowns := newCooldowns(ctx)
	defer closeCooldowns()

	orch := orchestrator.New(orchestrator.Deps{
		Config:    cfg,
		Store:     st,
		Moderator: wk,
		Engager:   wk,
		Actions:   acts,
		Memory:    mem,
		Gate:      throttle.New(cfg, cooldowns, log.Named("ai.throttle")),
		Log:       log.Named("ai.orchestrator"),
	})
	dispatcher := orchestrator.NewDispatcher(orch, dispatchQueue, 2*settings.AI.Timeout+time.Minute)
	defer dispatcher.Stop()

	chains := chain.New(chain.Deps{
		Config:    cfg,
		Store:     st,
		Generator: gen,
		Replier:   acts,
		Rand:      rnd,
		Log:       log.Named("ai.chain"),
	})
	defer chains.Stop()

	sched := scheduler.New(cfg, orch, log.Named("ai.scheduler"))
	if sched.Start(ctx) {
		log.Info("AI scheduler started", zap.Duration("interval", settings.AI.SchedulerInterval))
	}
	defer sched.Stop()

	engine := router.New(router.Deps{
		Config:      cfg,
		Store:       st,
		Board:       handlers.NewBoardHandler(cfg, st, gen, acts, chains, dispatcher, log),
		Admin:       handlers.NewAdminHandler(cfg, st, sink, wk, mem, log),
		RateLimiter: middleware.NewRateLimiter(log),
		Log:         log.Named("http"),
	})

	server := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("ai_provider", gw.Name()),
			zap.Bool("ai_enabled", settings.AI.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "listen")
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// newCooldowns uses redis when REDIS_URL is set and reachable, the in-process
// cache otherwise.
func newCooldowns(ctx context.Context) (throttle.Cooldowns, func()) {
	if settings.RedisURL == "" {
		return throttle.NewMemoryCooldowns(), func() {}
	}
	rc, err := throttle.NewRedisCooldowns(settings.RedisURL)
	if err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = rc.Ping(pingCtx)
		cancel()
		if err == nil {
			log.Info("reply cooldowns stored in redis")
			return rc, func() { _ = rc.Close() }
		}
		_ = rc.Close()
	}
	log.Warn("redis unavailable, using in-memory cooldowns", zap.Error(err))
	return throttle.NewMemoryCooldowns(), func() {}
}
