package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"PlaceFinder-App/internal/handler"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "HTTPサーバー・キューのコンシューマー・WebSocket配信を起動する",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "HTTPの待ち受けアドレス。HTTP_ADDR より優先")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handler.NewRouter(handler.RouterConfig{
		Places:          handler.NewPlacesHandler(a.submission, a.resolver, a.repo),
		Hub:             a.hub,
		Metrics:         a.metrics,
		Gatherer:        a.registry,
		MetricsUser:     cfg.Server.MetricsUser,
		MetricsPassword: cfg.Server.MetricsPassword,
		Logger:          logger.WithName("http"),
	})
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.hub.Run(gctx)
	})

	g.Go(func() error {
		return a.newConsumer(a.hub).Run(gctx)
	})

	g.Go(func() error {
		logger.Info("🚀 サーバーを起動します", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("🛑 サーバーを停止します")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
