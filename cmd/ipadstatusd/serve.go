package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ipad-status-backend/internal/api"
	"ipad-status-backend/internal/db"
	"ipad-status-backend/internal/scraper"
	"ipad-status-backend/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background poller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	aggregator := newAggregator(cfg)

	var appStore store.Store
	if cfg.Database.Enabled() {
		gormDB, err := db.Init(&cfg.Database)
		if err != nil {
			return errors.Wrap(err, "failed to initialize database")
		}
		appStore = store.NewGormStore(gormDB)
		log.Info().Msg("data store initialized")

		scraperSvc := scraper.NewService(cfg, appStore, aggregator)
		go scraperSvc.Run(ctx)
	} else {
		log.Warn().Msg("no database configured, serving live status only")
	}

	router := api.NewRouter(cfg, aggregator, appStore, &webpushOptions)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return errors.Wrap(err, "HTTP server ListenAndServe")
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, stopping services")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server Shutdown")
	}

	log.Info().Msg("server gracefully stopped")
	return nil
}
