package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/privacy"
	"github.com/hyperjump/kioku/internal/ranking"
)

func (s *Server) handleIndexMaterial(w http.ResponseWriter, r *http.Request) {
	var in models.MaterialInput
	if !s.decode(w, r, &in) {
		return
	}
	res, err := s.indexer.IndexMaterial(r.Context(), in)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, res)
}

type indexFileRequest struct {
	OwnerID string `json:"owner_id"`
	Path    string `json:"path"`
}

func (s *Server) handleIndexFile(w http.ResponseWriter, r *http.Request) {
	var req indexFileRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		s.respondError(w, models.NewValidationError("path is required"))
		return
	}
	res, err := s.indexer.IndexFile(r.Context(), req.OwnerID, req.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.respondMessage(w, http.StatusNotFound, "file not found")
			return
		}
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, res)
}

type summaryRequest struct {
	ConversationID string                  `json:"conversation_id"`
	OwnerID        string                  `json:"owner_id"`
	Summary        string                  `json:"summary"`
	Metadata       *models.SummaryMetadata `json:"metadata,omitempty"`
}

func (s *Server) handleIndexSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.indexer.IndexConversationSummary(r.Context(), req.ConversationID, req.OwnerID, req.Summary, req.Metadata)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": id, "status": "indexed"})
}

func (s *Server) handleDeleteSources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope := models.Scope{
		OwnerID:    q.Get("owner_id"),
		SourceType: models.SourceType(q.Get("source_type")),
		SourceID:   q.Get("source_id"),
	}
	n, err := s.indexer.DeleteSource(r.Context(), scope)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

type rerankRequest struct {
	TopK        int              `json:"top_k,omitempty"`
	IdealLength int              `json:"ideal_length,omitempty"`
	Weights     *ranking.Weights `json:"weights,omitempty"`
}

type hybridSearchRequest struct {
	models.HybridQuery
	Rerank *rerankRequest `json:"rerank,omitempty"`
}

// rerankOptions merges a request's rerank block over the configured defaults.
// Without a block, reranking runs only when enabled in config.
func rerankOptions(cfg *config.RerankConfig, req *rerankRequest) *ranking.Options {
	if req == nil && !cfg.Enabled {
		return nil
	}
	opts := cfg.Options()
	if req != nil {
		if req.TopK > 0 {
			opts.TopK = req.TopK
		}
		if req.IdealLength > 0 {
			opts.IdealLength = req.IdealLength
		}
		if req.Weights != nil {
			opts.Weights = *req.Weights
		}
	}
	return &opts
}

func (s *Server) handleHybridSearch(w http.ResponseWriter, r *http.Request) {
	var req hybridSearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.logger.Debug("hybrid search request",
		zap.String("owner_id", req.OwnerID),
		zap.Int("limit", req.Limit),
		zap.Bool("rerank", req.Rerank != nil))
	resp, err := s.engine.Search(r.Context(), req.HybridQuery, rerankOptions(&s.config.Rerank, req.Rerank))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSimilarMaterials(w http.ResponseWriter, r *http.Request) {
	var q models.SimilarQuery
	if !s.decode(w, r, &q) {
		return
	}
	results, err := s.engine.FindSimilarMaterials(r.Context(), q)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleRelatedConcepts(w http.ResponseWriter, r *http.Request) {
	var q models.ConceptQuery
	if !s.decode(w, r, &q) {
		return
	}
	results, err := s.engine.FindRelatedConcepts(r.Context(), q)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

type anonymizeRequest struct {
	Text     string            `json:"text,omitempty"`
	Messages []privacy.Message `json:"messages,omitempty"`
}

func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	var req anonymizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	switch {
	case len(req.Messages) > 0:
		s.respondJSON(w, http.StatusOK, s.anonymizer.AnonymizeConversation(req.Messages))
	case req.Text != "":
		s.respondJSON(w, http.StatusOK, s.anonymizer.Anonymize(req.Text))
	default:
		s.respondError(w, models.NewValidationError("text or messages is required"))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	store := s.engine.Store()
	count, err := store.Count(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	info := store.Info()
	resp := map[string]any{
		"records":    count,
		"size_bytes": store.SizeBytes(),
		"backend": map[string]any{
			"name":       info.Name,
			"native":     info.Native,
			"index_kind": info.IndexKind,
		},
		"config": map[string]any{
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_model":      s.config.Embedding.Model,
			"embedding_dimensions": store.Dimensions(),
			"max_chunk_size":       s.config.Chunking.MaxChunkSize,
			"chunk_overlap":        s.config.Chunking.Overlap,
			"semantic_weight":      s.config.Search.SemanticWeight,
			"rerank_enabled":       s.config.Rerank.Enabled,
		},
	}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondMessage(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"directories": s.watch.Directories()})
}

type watchDirectoryRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondMessage(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchDirectoryRequest
	if !s.decode(w, r, &req) {
		return
	}
	abs, ok := s.directoryPath(w, req.Path)
	if !ok {
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondMessage(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, err)
		return
	}
	if !info.IsDir() {
		s.respondError(w, models.NewValidationError("path is not a directory"))
		return
	}
	syncExisting := req.Sync == nil || *req.Sync
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.respondError(w, err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondMessage(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	abs, ok := s.directoryPath(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.respondError(w, err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) directoryPath(w http.ResponseWriter, path string) (string, bool) {
	if path == "" {
		s.respondError(w, models.NewValidationError("path is required"))
		return "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, models.NewValidationError("invalid path"))
		return "", false
	}
	return abs, true
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// statusFor maps an error to the HTTP status reported for it.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondMessage(w, status, err.Error())
}

func (s *Server) respondMessage(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
