package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MacPhobos/audio-ident-sub000/cmd/audioident/internal/build"
	"github.com/MacPhobos/audio-ident-sub000/pkg/app"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP identification service",
	Long: `Serve starts the identification service: it opens the catalog,
vector store, and fingerprint index, warms the embedding model, recovers
any ingests interrupted by a crash, and then listens for HTTP requests
until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	log := newLogger(settings)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := app.New(ctx, settings, build.Version, log)
	if err != nil {
		return err
	}
	defer a.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Server.Start()
	}()
	log.Info("listening", "addr", settings.Addr(), "version", build.Version)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", "error", err)
	}
	return <-errCh
}
