package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"worktracker.org/internal/audit"
	"worktracker.org/internal/config"
	"worktracker.org/internal/httpapi"
	"worktracker.org/internal/obs"
	"worktracker.org/internal/token"
	"worktracker.org/internal/users"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Revocation entries must outlive any access token minted before the
	// revoke, so retention follows the configured access TTL.
	retention := token.WithRevocationRetention(cfg.AccessTTL)

	// Postgres backs every store when a DSN is configured; without one the
	// service runs fully in-memory, which is fine for a single node.
	var (
		db         *sql.DB
		tokenStore token.Store = token.NewMemoryStore(retention)
		userStore  users.Store = users.NewMemoryStore()
		auditStore audit.Store = audit.NewMemoryStore()
	)
	if cfg.PGDSN != "" {
		db, err = token.OpenPG(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		tokenStore = token.NewPGStore(db, retention)
		userStore = users.NewPGStore(db)
		auditStore = audit.NewPGStore(db)
	}

	tokens, err := token.NewManager(tokenStore, cfg.AccessSecret, cfg.RefreshSecret,
		token.WithAccessTTL(cfg.AccessTTL),
		token.WithRefreshTTL(cfg.RefreshTTL),
		token.WithIssuer(cfg.Issuer),
	)
	if err != nil {
		log.Fatalf("token manager: %v", err)
	}

	sink := audit.NewSink(auditStore, audit.WithBuffer(cfg.AuditBuffer))
	limiter := httpapi.NewRateLimiter(cfg.RateLimits)

	api := httpapi.New(httpapi.Options{
		Tokens:       tokens,
		Users:        userStore,
		Sink:         sink,
		Limiter:      limiter,
		Ready:        httpapi.ReadyProbe{DB: db},
		PublicPaths:  cfg.PublicPaths,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	bg, stopBg := context.WithCancel(context.Background())
	go sweepSessions(bg, tokens, cfg.SessionSweepInterval)
	go sweepRateWindows(bg, limiter, cfg.RateLimitSweepInterval)

	log.Printf("Starting worktracker-api %s (%s) on %s", version, obs.BuildRevision(), cfg.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)
	stopBg()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	sink.Close()
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

// sweepSessions moves expired refresh sessions into the revocation set and
// prunes stale revocations.
func sweepSessions(ctx context.Context, tokens *token.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := tokens.CleanupExpired(ctx); err != nil {
				obs.LogError("session cleanup failed", map[string]any{"err": err.Error()})
			} else if n > 0 {
				obs.LogRequest(map[string]any{
					"ts":    time.Now().UTC().Format(time.RFC3339Nano),
					"level": "info",
					"msg":   "sessions_compacted",
					"count": n,
				})
			}
		}
	}
}

// sweepRateWindows bounds the rate limiter's memory.
func sweepRateWindows(ctx context.Context, limiter *httpapi.RateLimiter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep(time.Now())
		}
	}
}
