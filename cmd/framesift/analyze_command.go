package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/framesift/framesift/internal/config"
	"github.com/framesift/framesift/internal/embeddings"
	"github.com/framesift/framesift/internal/gate"
	"github.com/framesift/framesift/internal/media"
	"github.com/framesift/framesift/internal/orchestrator"
	"github.com/framesift/framesift/internal/sampler"
	"github.com/framesift/framesift/internal/scorer"
	"github.com/framesift/framesift/internal/store"
)

func newAnalyzeCommand(cmdCtx *commandContext) *cobra.Command {
	var intervalFlag float64
	var maxFramesFlag int
	var thresholdFlag float64

	cmd := &cobra.Command{
		Use:   "analyze [video...]",
		Short: "Extract and score frames from videos",
		Long: "Extract frames at a fixed interval and score each with the configured " +
			"vision model. With no arguments every video in the configured video " +
			"directory is analyzed. Interrupting with Ctrl-C pauses the job; running " +
			"the same command again resumes it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			logger := cmdCtx.ensureLogger()

			opts := orchestrator.Options{
				Interval:  time.Duration(cfg.Analysis.IntervalSeconds * float64(time.Second)),
				MaxFrames: cfg.Analysis.MaxFrames,
				Threshold: cfg.Analysis.FlagThreshold,
			}
			if cmd.Flags().Changed("interval") {
				opts.Interval = time.Duration(intervalFlag * float64(time.Second))
			}
			if cmd.Flags().Changed("max-frames") {
				opts.MaxFrames = maxFramesFlag
			}
			if cmd.Flags().Changed("threshold") {
				opts.Threshold = thresholdFlag
			}

			targets, err := resolveTargets(cfg, args)
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				return fmt.Errorf("no videos found in %s", cfg.Paths.VideoDir)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			backend, err := buildScorer(ctx, cfg, logger)
			if err != nil {
				return err
			}
			client := scorer.NewRetryingClient(backend, gate.New(), scorer.RetryPolicy{
				MaxAttempts:       cfg.Backend.MaxAttempts,
				MalformedAttempts: cfg.Backend.MalformedAttempts,
				InitialBackoff:    time.Duration(cfg.Backend.RetryBackoffMS) * time.Millisecond,
			}, logger)

			var embedder *embeddings.Service
			if cfg.Postgres.Enabled && cfg.Postgres.EmbeddingModel != "" {
				embedder = embeddings.NewService(cfg.Backend.BaseURL, cfg.Postgres.EmbeddingModel, 2)
				defer embedder.Close()
			}

			st := store.New(cfg.Paths.OutputDir)
			frames := sampler.New(sampler.NewFFmpegSource(), cfg.Analysis.FramePrefix, logger)

			rows := make([][]string, 0, len(targets))
			var runErr error
			for _, target := range targets {
				if ctx.Err() != nil {
					break
				}
				artifact, err := analyzeOne(ctx, cfg, logger, frames, client, st, embedder, target, opts)
				if err != nil {
					logger.Error("analysis failed", "video", target, "error", err)
					if runErr == nil {
						runErr = err
					}
				}
				if artifact != nil {
					rows = append(rows, artifactRow(artifact))
				}
			}

			if len(rows) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Video", "Status", "Analyzed", "Skipped", "Flagged", "Avg score"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
				))
			}
			return runErr
		},
	}

	cmd.Flags().Float64Var(&intervalFlag, "interval", 0, "Seconds between extracted frames")
	cmd.Flags().IntVar(&maxFramesFlag, "max-frames", 0, "Cap on extracted frames (0 = unlimited)")
	cmd.Flags().Float64Var(&thresholdFlag, "threshold", 0, "Score at or above which a frame is flagged")

	return cmd
}

// resolveTargets maps command arguments to video paths, defaulting to the
// whole configured video directory.
func resolveTargets(cfg *config.Config, args []string) ([]string, error) {
	if len(args) > 0 {
		for _, arg := range args {
			if _, err := os.Stat(arg); err != nil {
				return nil, fmt.Errorf("inspect video %q: %w", arg, err)
			}
		}
		return args, nil
	}
	videos, err := media.List(cfg.Paths.VideoDir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(videos))
	for i, v := range videos {
		paths[i] = v.Path
	}
	return paths, nil
}

func buildScorer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (scorer.Scorer, error) {
	rubric := scorer.DefaultRubric()
	switch cfg.Backend.Provider {
	case "ollama":
		return scorer.NewOllamaScorer(ctx, logger, cfg.Backend.BaseURL, cfg.Backend.Model, rubric)
	default:
		opts := []scorer.OpenAIOption{
			scorer.WithRubric(rubric),
			scorer.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
			}),
		}
		if cfg.Backend.APIKey != "" {
			opts = append(opts, scorer.WithAPIKey(cfg.Backend.APIKey))
		}
		return scorer.NewOpenAIClient(cfg.Backend.BaseURL, cfg.Backend.Model, opts...), nil
	}
}

// analyzeOne runs a single job, attaching the Postgres mirror when enabled.
func analyzeOne(ctx context.Context, cfg *config.Config, logger *slog.Logger, frames *sampler.Sampler, client orchestrator.FrameClient, st *store.Store, embedder *embeddings.Service, target string, opts orchestrator.Options) (*store.Artifact, error) {
	var sink orchestrator.RecordSink
	if cfg.Postgres.Enabled {
		mirror, err := store.NewMirror(ctx, store.PostgresConfig{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			DBName:   cfg.Postgres.Database,
		}, media.Stem(target), embedder, logger)
		if err != nil {
			logger.Warn("postgres mirror unavailable, continuing without it", "error", err)
		} else {
			defer mirror.Close()
			sink = mirror
		}
	}

	o := orchestrator.New(orchestrator.Config{
		Sampler: frames,
		Client:  client,
		Store:   st,
		Sink:    sink,
		Logger:  logger,
	})
	return o.Run(ctx, target, opts)
}

func artifactRow(artifact *store.Artifact) []string {
	return []string{
		artifact.VideoInfo.Filename,
		string(artifact.Job.Status),
		strconv.Itoa(len(artifact.Frames)),
		strconv.Itoa(len(artifact.Job.SkippedFrames)),
		strconv.Itoa(artifact.Summary.FlaggedFrames),
		strconv.FormatFloat(artifact.Summary.AverageScore, 'f', 2, 64),
	}
}
