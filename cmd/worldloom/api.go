package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"worldloom/internal/api"
	"worldloom/internal/config"
)

func apiCmd() *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAPI(cmd, listenAddr)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides config)")
	return cmd
}

func runAPI(cmd *cobra.Command, listenAddr string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadProjectConfig(configFile)
	if err != nil {
		return err
	}
	if listenAddr == "" {
		listenAddr = cfg.API.ListenAddr
	}

	st, err := openStore(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	logger := newLogger()
	worlds, loreSvc, tl := newServices(st, logger)
	srv := api.NewServer(worlds, loreSvc, tl, logger, cfg.API.AuthToken)

	if cfg.API.AuthToken == "" {
		logger.Warn("HTTP API: auth is DISABLED; set api.auth_token for production use")
	}

	httpSrv := &http.Server{
		Addr:              listenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API server starting", "addr", listenAddr)
		if listenErr := httpSrv.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			errCh <- fmt.Errorf("api: HTTP server: %w", listenErr)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case startErr := <-errCh:
		if startErr != nil {
			return startErr
		}
		return nil
	}

	const shutdownTimeout = 10 * time.Second
	if shutdownErr := api.Shutdown(httpSrv, shutdownTimeout); shutdownErr != nil {
		return fmt.Errorf("api: graceful shutdown: %w", shutdownErr)
	}

	// Drain the errCh in case ListenAndServe returned after Shutdown.
	if startErr := <-errCh; startErr != nil {
		return startErr
	}

	return nil
}
