package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/andresmejia3/facemood/internal/server"
	"github.com/spf13/cobra"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP recognition endpoint",
	Long: `Starts an HTTP server that accepts captured photos as multipart uploads
on POST /api/recognize and replies with the recognition record as JSON.`,
	Example: `  # Start server on default port 8888
  facemood serve

  # Upload a capture
  curl -F image=@photo.jpg http://localhost:8888/api/recognize`,
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cleanup := newOrchestrator()
		defer cleanup()

		handler := server.New(orch, server.Layout{
			CacheDir:  Cfg.CacheDir,
			FilesDir:  Cfg.FilesDir,
			AssetName: Cfg.AssetName,
		}, slog.Default())
		handler.OnOutcome = recordHistory

		addr := ":" + servePort
		srv := &http.Server{
			Addr:    addr,
			Handler: handler.Routes(),
		}

		// Start server in goroutine
		serverErr := make(chan error, 1)
		go func() {
			slog.Info("facemood endpoint available", "addr", addr, "url", "http://localhost"+addr+"/api/recognize")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()

		// Wait for context cancellation (Ctrl+C) or server error
		select {
		case <-cmd.Context().Done():
			slog.Info("Shutting down server...")
			// Give in-flight recognitions time to finish
			shutdownCtx, cancel := context.WithTimeout(context.Background(), Cfg.EngineTimeout+5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("Server shutdown failed", "err", err)
				return err
			}
			slog.Info("Server stopped")
			return nil
		case err := <-serverErr:
			return err
		}
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "8888", "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}
