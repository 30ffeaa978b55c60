package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/framesift/framesift/internal/api"
	"github.com/framesift/framesift/internal/embeddings"
	"github.com/framesift/framesift/internal/playback"
	"github.com/framesift/framesift/internal/store"
)

const version = "0.2.0"

func newServeCommand(cmdCtx *commandContext) *cobra.Command {
	var bindFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis dashboard API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			logger := cmdCtx.ensureLogger()

			bind := cfg.Paths.APIBind
			if cmd.Flags().Changed("bind") {
				bind = bindFlag
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var similarity api.SimilaritySearch
			if cfg.Postgres.Enabled && cfg.Postgres.EmbeddingModel != "" {
				embedder := embeddings.NewService(cfg.Backend.BaseURL, cfg.Postgres.EmbeddingModel, 2)
				defer embedder.Close()
				index, err := store.NewSearchIndex(ctx, store.PostgresConfig{
					Host:     cfg.Postgres.Host,
					Port:     cfg.Postgres.Port,
					User:     cfg.Postgres.User,
					Password: cfg.Postgres.Password,
					DBName:   cfg.Postgres.Database,
				}, embedder)
				if err != nil {
					logger.Warn("similarity search unavailable", "error", err)
				} else {
					defer index.Close()
					similarity = index
				}
			}

			server := api.NewServer(api.ServerConfig{
				Bind:       bind,
				VideoDir:   cfg.Paths.VideoDir,
				Store:      store.New(cfg.Paths.OutputDir),
				Streamer:   playback.NewStreamer(logger),
				Similarity: similarity,
				Logger:     logger,
				StartTime:  time.Now(),
				Version:    version,
			})

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&bindFlag, "bind", "", "Address to bind the API server to")
	return cmd
}
