package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/framesift/framesift/internal/analysis"
	"github.com/framesift/framesift/internal/embeddings"
)

// PostgresConfig holds connection details for the relational mirror.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// Mirror writes FrameRecords into Postgres alongside description embeddings
// for similarity search. It is a write-behind index: the JSON artifact stays
// the source of truth, and mirror failures never fail the job.
type Mirror struct {
	pool     *pgxpool.Pool
	videoID  int64
	embedder *embeddings.Service
	logger   *slog.Logger
}

// NewMirror connects to Postgres, ensures the schema, and registers the
// video. A nil embedder disables the embedding column.
func NewMirror(ctx context.Context, cfg PostgresConfig, videoName string, embedder *embeddings.Service, logger *slog.Logger) (*Mirror, error) {
	if logger == nil {
		logger = slog.Default()
	}
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	m := &Mirror{pool: pool, embedder: embedder, logger: logger}
	if err := m.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	videoID, err := m.getOrCreateVideo(ctx, videoName)
	if err != nil {
		pool.Close()
		return nil, err
	}
	m.videoID = videoID
	return m, nil
}

// Close releases the connection pool.
func (m *Mirror) Close() {
	if m != nil && m.pool != nil {
		m.pool.Close()
	}
}

func (m *Mirror) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS videos (
			id BIGSERIAL PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS frames (
			id BIGSERIAL PRIMARY KEY,
			video_id BIGINT NOT NULL REFERENCES videos(id),
			frame_index INT NOT NULL,
			ts TEXT NOT NULL,
			filename TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			is_flagged BOOLEAN NOT NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			description TEXT NOT NULL DEFAULT '',
			embedding vector,
			UNIQUE (video_id, frame_index)
		)`,
	}
	for _, stmt := range statements {
		if _, err := m.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (m *Mirror) getOrCreateVideo(ctx context.Context, videoName string) (int64, error) {
	var id int64
	err := m.pool.QueryRow(ctx,
		`SELECT id FROM videos WHERE name = $1`, videoName).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("look up video: %w", err)
	}

	err = m.pool.QueryRow(ctx,
		`INSERT INTO videos (name) VALUES ($1) RETURNING id`, videoName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create video entry: %w", err)
	}
	return id, nil
}

// RecordFrame mirrors one record. Records are immutable, so an existing
// (video, frame_index) row is left untouched on resume replays.
func (m *Mirror) RecordFrame(ctx context.Context, rec analysis.FrameRecord) error {
	var embedding *pgvector.Vector
	if m.embedder != nil && rec.Description != "" {
		vec, err := m.embedder.Embed(ctx, rec.Description)
		if err != nil {
			m.logger.Warn("description embedding failed, storing frame without vector",
				"frame", rec.FrameIndex, "error", err)
		} else {
			v := pgvector.NewVector(vec)
			embedding = &v
		}
	}

	_, err := m.pool.Exec(ctx,
		`INSERT INTO frames (video_id, frame_index, ts, filename, score, is_flagged, tags, description, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (video_id, frame_index) DO NOTHING`,
		m.videoID, rec.FrameIndex, rec.Timestamp, rec.Filename,
		rec.Score, rec.IsFlagged, rec.Tags, rec.Description, embedding,
	)
	if err != nil {
		return fmt.Errorf("mirror frame %d: %w", rec.FrameIndex, err)
	}
	return nil
}

// SearchIndex is the read side of the mirror: free-text similarity search
// over mirrored frame descriptions. Unlike Mirror it is not bound to one
// video, so the dashboard can query any analyzed video by name.
type SearchIndex struct {
	pool     *pgxpool.Pool
	embedder *embeddings.Service
}

// NewSearchIndex connects a query-only handle to the mirror database.
func NewSearchIndex(ctx context.Context, cfg PostgresConfig, embedder *embeddings.Service) (*SearchIndex, error) {
	if embedder == nil {
		return nil, errors.New("similarity search requires an embedding service")
	}
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &SearchIndex{pool: pool, embedder: embedder}, nil
}

// Close releases the connection pool.
func (s *SearchIndex) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// SimilarFrames embeds the free-text query and returns the filenames of the
// video's frames whose descriptions are nearest to it.
func (s *SearchIndex) SimilarFrames(ctx context.Context, video, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT f.filename FROM frames f
		 JOIN videos v ON v.id = f.video_id
		 WHERE v.name = $1 AND f.embedding IS NOT NULL
		 ORDER BY f.embedding <-> $2 LIMIT $3`,
		video, pgvector.NewVector(vec), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	var filenames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan similarity row: %w", err)
		}
		filenames = append(filenames, name)
	}
	return filenames, rows.Err()
}
