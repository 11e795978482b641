package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"traindesk/config"
	"traindesk/db"
	"traindesk/logs"
	"traindesk/notify"
	"traindesk/org"
	"traindesk/registration"
	"traindesk/roles"
	"traindesk/session"
)

func main() {
	cfg := config.MustLoad()

	log := logs.New(logs.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.DSN)
	if err != nil {
		log.WithError(err).Fatal("bootstrap database pool")
	}
	defer pool.Close()

	accountRepo := roles.NewRepository(pool)
	registrationRepo := registration.NewRepository(pool)
	sessionRepo := session.NewRepository(pool)
	orgRepo := org.NewRepository(pool)
	dispatcher := notify.NewDispatcher(pool)

	registrationService := registration.NewService(pool, registrationRepo, nil, dispatcher, log).
		WithOpTimeout(cfg.Database.OpTimeout)
	sessionService := session.NewService(sessionRepo, accountRepo, cfg.Auth.JWTSecret).
		WithTokenTTL(cfg.Auth.TokenTTL).
		WithOpTimeout(cfg.Database.OpTimeout)
	orgService := org.NewService(orgRepo)

	server := &Server{
		registrationService: registrationService,
		sessionService:      sessionService,
		orgService:          orgService,
		log:                 log,
	}

	addr := net.JoinHostPort(cfg.Server.Address, cfg.Server.HTTPPort)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown")
	}
}
