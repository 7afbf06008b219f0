package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webswarm/internal/metrics"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run history, config and metrics over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "http listen address override")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	store, err := openStore(ctx, cfg.Report.DBPath)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	addr := firstNonEmpty(serveFlags.addr, cfg.Server.Addr)
	a := &app{
		cfg:     cfg,
		store:   store,
		metrics: metrics.New(),
		logger:  logger,
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("webswarm serving",
		zap.String("addr", addr),
		zap.String("db", cfg.Report.DBPath),
		zap.String("model", cfg.LLM.Model),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}
