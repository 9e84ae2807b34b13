package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"labelscan/internal/adapter/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the label analysis HTTP API.

Routes:
  GET  /              upload page
  GET  /healthz       liveness
  POST /analyze       multipart field "image"
  POST /retrieve      {"ingredients": [...]} against the knowledge base
  GET  /history       recent scans (?limit=N)
  GET  /history/{id}  one scan

Examples:
  labelscan serve
  labelscan serve --addr :8080 --offline`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	log := GetLogger()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	server := httpapi.NewServer(a.scan, a.matcher, httpapi.Options{
		MaxUploadBytes:    cfg.Server.MaxUploadBytes,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		AllowedExtensions: cfg.Server.AllowedExtensions,
		History:           a.history,
		Logger:            log,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("model", a.model.ModelName()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
