package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/collab/internal/logging"
	"github.com/opencode-ai/collab/internal/server"
)

var (
	servePort  int
	serveModel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a collaboration session behind an HTTP API",
	Long: `Start a session and expose it over HTTP.

Clients spawn and address agents, wait on them and read the group chat
through the /session endpoints, and follow the session on /event.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config, else 8080)")
	serveCmd.Flags().StringVarP(&serveModel, "model", "m", "", "Model to use (provider/model format)")
}

func runServe(cmd *cobra.Command, args []string) error {
	printLogs = true
	initLogging()

	dir, err := GetWorkDir(workDir)
	if err != nil {
		return err
	}
	logging.Info().Str("version", Version).Str("directory", dir).Msg("starting collab server")

	ctx := context.Background()
	a, err := newApp(ctx, dir, serveModel)
	if err != nil {
		return err
	}

	serverConfig := server.DefaultConfig()
	if s := a.config.Server; s != nil {
		if s.Port != 0 {
			serverConfig.Port = s.Port
		}
		if len(s.CORS) > 0 {
			serverConfig.AllowedOrigins = s.CORS
		}
	}
	if servePort != 0 {
		serverConfig.Port = servePort
	}
	srv := server.New(serverConfig, a.session)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
	case serveErr = <-errCh:
		logging.Error().Err(serveErr).Msg("server error")
	}

	logging.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}
	a.close(shutdownCtx)

	logging.Info().Msg("server stopped")
	return serveErr
}
