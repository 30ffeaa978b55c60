package api

import (
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/framesift/framesift/internal/media"
	"github.com/framesift/framesift/internal/playback"
	"github.com/framesift/framesift/internal/store"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Route("/api", func(r chi.Router) {
		r.Get("/videos", listVideosHandler(cfg))
		r.Get("/analysis", analysisHandler(cfg))
		r.Get("/video-file", videoFileHandler(cfg))
		r.Get("/thumbnail", thumbnailHandler(cfg))
		r.Get("/frame-at", frameAtHandler(cfg))
		r.Get("/similar", similarHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func listVideosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videos, err := media.List(cfg.VideoDir)
		if err != nil {
			cfg.Logger.Error("video inventory failed", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to list videos", "INTERNAL_ERROR")
			return
		}

		resp := VideosResponse{Videos: make([]VideoResponse, 0, len(videos))}
		for _, v := range videos {
			artifact, err := cfg.Store.Load(v.Stem)
			if err != nil {
				cfg.Logger.Warn("unreadable artifact", "video", v.Stem, "error", err)
				artifact = nil
			}
			resp.Videos = append(resp.Videos, VideoToResponse(v, artifact))
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func analysisHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stem := r.URL.Query().Get("video")
		if stem == "" || !safeName(stem) {
			WriteError(w, http.StatusBadRequest, "video is required", "BAD_REQUEST")
			return
		}

		artifact, err := cfg.Store.Load(stem)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to read analysis", "INTERNAL_ERROR")
			return
		}
		if artifact == nil {
			WriteError(w, http.StatusNotFound, "analysis not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, AnalysisResponse{
			Artifact:  artifact,
			ChartData: ChartDataFor(artifact),
		})
	}
}

func videoFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			WriteError(w, http.StatusBadRequest, "name is required", "BAD_REQUEST")
			return
		}
		if !safeName(name) || !media.IsVideoFile(name) {
			WriteError(w, http.StatusBadRequest, "invalid video name", "BAD_REQUEST")
			return
		}

		path := filepath.Join(cfg.VideoDir, name)
		if err := cfg.Streamer.ServeFile(w, r, path); err != nil {
			cfg.Logger.Error("video playback failed", "name", name, "error", err)
		}
	}
}

func thumbnailHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stem := r.URL.Query().Get("video")
		if stem == "" || !safeName(stem) {
			WriteError(w, http.StatusBadRequest, "video is required", "BAD_REQUEST")
			return
		}

		frame := r.URL.Query().Get("frame")
		if frame == "" {
			artifact, err := cfg.Store.Load(stem)
			if err != nil || artifact == nil {
				WriteError(w, http.StatusNotFound, "analysis not found", "NOT_FOUND")
				return
			}
			frame = defaultThumbnail(artifact)
			if frame == "" {
				WriteError(w, http.StatusNotFound, "no frames analyzed", "NOT_FOUND")
				return
			}
		}
		if !safeName(frame) {
			WriteError(w, http.StatusBadRequest, "invalid frame name", "BAD_REQUEST")
			return
		}

		path := filepath.Join(cfg.Store.FramesDir(stem), frame)
		if err := cfg.Streamer.ServeFile(w, r, path); err != nil {
			cfg.Logger.Error("thumbnail serving failed", "frame", frame, "error", err)
		}
	}
}

func frameAtHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stem := r.URL.Query().Get("video")
		if stem == "" || !safeName(stem) {
			WriteError(w, http.StatusBadRequest, "video is required", "BAD_REQUEST")
			return
		}
		seconds, err := strconv.ParseFloat(r.URL.Query().Get("position"), 64)
		if err != nil || seconds < 0 {
			WriteError(w, http.StatusBadRequest, "position must be a non-negative number of seconds", "BAD_REQUEST")
			return
		}

		artifact, err := cfg.Store.Load(stem)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to read analysis", "INTERNAL_ERROR")
			return
		}
		if artifact == nil {
			WriteError(w, http.StatusNotFound, "analysis not found", "NOT_FOUND")
			return
		}

		position := time.Duration(seconds * float64(time.Second))
		rec, ok := playback.FrameAt(artifact.SortedRecords(), position)
		if !ok {
			WriteError(w, http.StatusNotFound, "no frame at that position", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, FrameAtResponse{
			FrameIndex: rec.FrameIndex,
			Timestamp:  rec.Timestamp,
			Filename:   rec.Filename,
			Score:      rec.Score,
			IsFlagged:  rec.IsFlagged,
		})
	}
}

func similarHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Similarity == nil {
			WriteError(w, http.StatusNotImplemented, "similarity search requires the postgres mirror", "NOT_CONFIGURED")
			return
		}
		stem := r.URL.Query().Get("video")
		if stem == "" || !safeName(stem) {
			WriteError(w, http.StatusBadRequest, "video is required", "BAD_REQUEST")
			return
		}
		query := r.URL.Query().Get("q")
		if query == "" {
			WriteError(w, http.StatusBadRequest, "q is required", "BAD_REQUEST")
			return
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = parsed
		}

		frames, err := cfg.Similarity.SimilarFrames(r.Context(), stem, query, limit)
		if err != nil {
			cfg.Logger.Error("similarity search failed", "video", stem, "error", err)
			WriteError(w, http.StatusInternalServerError, "similarity search failed", "INTERNAL_ERROR")
			return
		}
		if frames == nil {
			frames = []string{}
		}
		WriteJSON(w, http.StatusOK, SimilarResponse{Query: query, Frames: frames})
	}
}

// defaultThumbnail picks the highest scoring frame, falling back to the
// first analyzed one. Empty means no frames exist.
func defaultThumbnail(artifact *store.Artifact) string {
	if name := artifact.Summary.HighestScoreFrame.Filename; name != "" {
		return name
	}
	if records := artifact.SortedRecords(); len(records) > 0 {
		return records[0].Filename
	}
	return ""
}

// safeName rejects names that escape their directory.
func safeName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name
}
