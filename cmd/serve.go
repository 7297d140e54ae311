package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/azzcolabs/concierge/core/analytics"
	"github.com/azzcolabs/concierge/core/config"
	"github.com/azzcolabs/concierge/core/geo"
	"github.com/azzcolabs/concierge/core/notes"
	"github.com/azzcolabs/concierge/core/server"
	"github.com/azzcolabs/concierge/core/session"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chatbot HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides configuration)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := analytics.Open(cfg.Analytics.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	recorder := analytics.NewRecorder(store, logger, cfg.Analytics.QueueBuffer)
	defer recorder.Close()

	var notesStore *notes.Store
	if cfg.Notes.Enabled {
		notesStore, err = notes.NewStore(store.DB())
		if err != nil {
			return err
		}
	}

	service, registry, err := buildService(ctx, cfg, recorder, logger)
	if err != nil {
		return err
	}
	defer registry.Close()

	holder := newServiceHolder(service)

	var geoClient *geo.Client
	if cfg.Geo.Enabled {
		opts := []geo.Option{}
		if cfg.Geo.BaseURL != "" {
			opts = append(opts, geo.WithBaseURL(cfg.Geo.BaseURL))
		}
		geoClient, err = geo.NewClient(logger, opts...)
		if err != nil {
			return err
		}
		defer geoClient.Close()
	}

	sessions, err := session.NewStore(session.DefaultMaxSessions, session.DefaultMaxTurns)
	if err != nil {
		return err
	}

	// Persona and prompt files reload in place when edited; a reload
	// failure keeps the previous tables.
	if cfg.Chat.PersonaTable != "" || cfg.Chat.PromptLibrary != "" {
		watcher, err := config.Watch(logger, func(path string) {
			rebuilt, rebuiltRegistry, err := buildService(ctx, cfg, recorder, logger)
			if err != nil {
				logger.Warn("reload failed, keeping previous configuration", "path", path, "error", err)
				return
			}
			// The old registry's provider clients stay open for any
			// in-flight request; they hold no persistent connections.
			_ = rebuiltRegistry
			holder.swap(rebuilt)
			logger.Info("configuration reloaded", "path", path)
		}, cfg.Chat.PersonaTable, cfg.Chat.PromptLibrary)
		if err != nil {
			return err
		}
		defer watcher.Close()
	}

	srv := server.New(holder, sessions, store, notesStore, geoClient, logger, server.Options{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RequestTimeout:  cfg.Chat.Timeout,
		GeoEnabled:      cfg.Geo.Enabled,
		NotesWriteToken: cfg.Notes.WriteToken,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("chatbot server listening", "addr", cfg.Server.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
