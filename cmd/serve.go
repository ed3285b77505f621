package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chxlky/trello-matrix-bot/api"
	"github.com/chxlky/trello-matrix-bot/internal/notify"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Trello webhook receiver",
	Long: `Starts the HTTP server that receives Trello webhooks and posts the
resulting notices into every Matrix room watching the board.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	defer zap.L().Sync()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(sigCtx)
	if err != nil {
		return err
	}
	defer a.close()

	busCtx, cancelBus := context.WithCancel(context.Background())
	defer cancelBus()

	if a.bus != nil {
		go func() {
			if err := a.bus.Listen(busCtx, a.options); err != nil && !errors.Is(err, context.Canceled) {
				zap.L().Error("Options invalidation listener stopped", zap.Error(err))
			}
		}()
		zap.L().Info("Listening for options changes", zap.String("channel", a.cfg.Redis.Channel))
	}

	logger := zap.L()
	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	apiHandler := &api.Handler{
		Dispatcher: notify.NewDispatcher(a.watches, a.options, a.matrix),
		Workers:    make(chan struct{}, a.cfg.Workers),
	}
	apiHandler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    ":" + a.cfg.Server.Port,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	zap.L().Info("Starting server", zap.String("port", a.cfg.Server.Port))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-sigCtx.Done():
	}
	// a second signal now terminates the process
	stop()
	zap.L().Info("Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Error shutting down server", zap.Error(err))
	} else {
		zap.L().Info("HTTP server shut down gracefully.")
	}

	// accepted webhooks still get their notices
	apiHandler.Wait()
	cancelBus()

	zap.L().Info("Exiting...")
	return nil
}
