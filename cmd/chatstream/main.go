// Command chatstream runs the streaming chat backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"chatstream/internal/ai/gemini"
	"chatstream/internal/config"
	"chatstream/internal/filestore"
	"chatstream/internal/relay"
	"chatstream/internal/server"
	"chatstream/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "chatstream",
	Short: "Streaming LLM chat backend",
	Long:  `chatstream relays chat messages to the Gemini API, streams the reply back as newline-delimited JSON chunks, and persists the conversation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve() error {
	// .env is optional; real deployments set GEMINI_API_KEY directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	chatStore, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer chatStore.Close()

	assets, err := filestore.New(cfg.AssetsDir)
	if err != nil {
		return err
	}

	provider := gemini.New().WithFileWriter(assets)
	streamRelay := relay.New(chatStore, provider, cfg.SystemPrompt, logger)
	api := server.New(chatStore, streamRelay, cfg.DefaultModel, cfg.RequestTimeoutDuration(), logger)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: chunk streams are long-lived; the per-request
		// context carries the deadline instead.
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen, "database", cfg.DatabasePath, "assets", assets.Dir())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
