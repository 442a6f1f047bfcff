package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/bcrypt"

	"jurix.app/internal/audit"
	"jurix.app/internal/authz"
	"jurix.app/internal/config"
	"jurix.app/internal/httpapi"
	"jurix.app/internal/ids"
	"jurix.app/internal/obs"
	"jurix.app/internal/session"
	"jurix.app/internal/store/pg"
	"jurix.app/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	store, err := pg.Open(cfg.Stores.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	auditor := audit.NewLogger(store)

	resolver, err := authz.NewResolver(store)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	admin, err := authz.NewAdmin(store, auditor, store)
	if err != nil {
		log.Fatalf("admin: %v", err)
	}
	validator, err := session.NewValidator(store)
	if err != nil {
		log.Fatalf("validator: %v", err)
	}
	tokens, err := session.NewTokenSource(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("token source: %v", err)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if cfg.Auth.OperatorEmail != "" && cfg.Auth.OperatorPassword != "" {
		if err := seedOperator(rootCtx, store, cfg.Auth.OperatorEmail, cfg.Auth.OperatorPassword); err != nil {
			log.Fatalf("seed operator: %v", err)
		}
	}

	// Revocation fan-out: local broker always, Redis bridge when an address
	// is configured so peers converge ahead of their poll interval.
	broker := stream.NewBroker()
	var publisher stream.Publisher = stream.LocalPublisher{Broker: broker}
	if cfg.Stores.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Stores.RedisAddr,
			DB:   cfg.Stores.RedisDB,
		})
		defer client.Close()
		bridge, err := stream.NewRedisBridge(client, broker)
		if err != nil {
			log.Fatalf("redis bridge: %v", err)
		}
		publisher = bridge
		go func() {
			if err := bridge.Run(rootCtx); err != nil && rootCtx.Err() == nil {
				obs.Error("revocation bridge stopped", err)
			}
		}()
	}

	// Retention job for the audit trail.
	var purger *cron.Cron
	if cfg.Audit.Retention > 0 {
		purger = cron.New()
		_, err := purger.AddFunc(cfg.Audit.PurgeSchedule, func() {
			ctx, cancel := context.WithTimeout(rootCtx, 5*time.Minute)
			defer cancel()
			cutoff := time.Now().Add(-cfg.Audit.Retention)
			purged, err := store.PurgeAllBefore(ctx, cutoff)
			if err != nil {
				obs.Error("audit purge failed", err)
				return
			}
			obs.Info("audit purge done", "purged", purged)
		})
		if err != nil {
			log.Fatalf("audit purge schedule: %v", err)
		}
		purger.Start()
	}

	api := httpapi.New(httpapi.Config{
		Version:         version,
		ReadyProbe:      httpapi.ReadyProbe{DB: store.DB()},
		Resolver:        resolver,
		Admin:           admin,
		Validator:       validator,
		Tokens:          tokens,
		Ledger:          store,
		Directory:       store,
		Auditor:         auditor,
		AuditStore:      store,
		Broker:          broker,
		Publisher:       publisher,
		InternalSecret:  cfg.Auth.InternalSecret,
		PollInterval:    cfg.Session.PollInterval,
		RateBurst:       cfg.Limits.RateBurst,
		RatePerSec:      int(cfg.Limits.RatePerSec),
		MaxBodyBytes:    cfg.Limits.MaxBodyBytes,
		ModuleCacheSize: cfg.Session.CacheSize,
		ModuleCacheTTL:  cfg.Session.CacheTTL,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Printf("Starting jurix-core %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	if purger != nil {
		purger.Stop()
	}
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

// seedOperator makes sure a privileged identity exists for the tenant
// provisioning surface. Re-running with the same email is a no-op.
func seedOperator(ctx context.Context, store *pg.Store, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return store.CreateOperator(ctx, &session.OperatorState{
		ID:             ids.New(),
		Email:          email,
		PasswordHash:   string(hash),
		Active:         true,
		SessionVersion: 1,
	})
}
