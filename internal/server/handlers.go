package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

const (
	defaultListLimit   = 100
	maxSearchLimit     = 100
	defaultSearchLimit = 10
	defaultMetricsN    = 100
	defaultRecentN     = 10
)

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req chat.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ask request", zap.Int("question_chars", len(req.Question)), zap.Int("top_k", req.TopK))
	resp, err := s.Chat.Ask(r.Context(), req)
	if err != nil {
		s.fail(w, "ask failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	lastN, ok := s.intParam(w, r, "last_n", defaultMetricsN)
	if !ok {
		return
	}
	stats, err := s.Tracker.Statistics(r.Context(), lastN)
	if err != nil {
		s.fail(w, "statistics failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRecentMetrics(w http.ResponseWriter, r *http.Request) {
	n, ok := s.intParam(w, r, "n", defaultRecentN)
	if !ok {
		return
	}
	recent, err := s.Tracker.Recent(r.Context(), n)
	if err != nil {
		s.fail(w, "recent metrics failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"queries": recent, "count": len(recent)})
}

func (s *Server) handleBottlenecks(w http.ResponseWriter, r *http.Request) {
	b, err := s.Tracker.Bottlenecks(r.Context())
	if err != nil {
		s.fail(w, "bottleneck analysis failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, b)
}

type uploadResponse struct {
	Document *models.Document       `json:"document"`
	Pipeline *models.PipelineResult `json:"pipeline"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Ingest.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	s.logger.Debug("upload request", zap.String("filename", header.Filename), zap.Int("bytes", len(content)))

	doc, err := s.Coordinator.Ingest(r.Context(), header.Filename, content)
	if err != nil {
		s.fail(w, "ingest failed", err)
		return
	}
	result, err := s.Coordinator.ProcessDocument(r.Context(), doc.ID)
	if err != nil {
		s.fail(w, "processing failed", err)
		return
	}
	if doc, err = s.Store.GetDocument(r.Context(), doc.ID); err != nil {
		s.fail(w, "processing failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, uploadResponse{Document: doc, Pipeline: result})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, ok := s.intParam(w, r, "offset", 0)
	if !ok {
		return
	}
	limit, ok := s.intParam(w, r, "limit", defaultListLimit)
	if !ok {
		return
	}
	docs, err := s.Store.ListDocuments(r.Context(), max(offset, 0), max(limit, 1))
	if err != nil {
		s.fail(w, "list documents failed", err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.Store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get document failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.Coordinator.DeleteDocument(r.Context(), id); err != nil {
		s.fail(w, "deletion failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleDocumentChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.Store.GetDocument(r.Context(), id); err != nil {
		s.fail(w, "get chunks failed", err)
		return
	}
	chunks, err := s.Store.GetChunksByDocumentID(r.Context(), id)
	if err != nil {
		s.fail(w, "get chunks failed", err)
		return
	}
	if chunks == nil {
		chunks = []*models.Chunk{}
	}
	s.respondJSON(w, http.StatusOK, chunks)
}

func (s *Server) handleRechunk(w http.ResponseWriter, r *http.Request) {
	result, err := s.Coordinator.Rechunk(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "rechunk failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleChunkContext(w http.ResponseWriter, r *http.Request) {
	window, ok := s.intParam(w, r, "window", s.cfg.Retrieval.ContextWindow)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	text, err := s.Retriever.ChunkContext(r.Context(), id, max(window, 0))
	if err != nil {
		s.fail(w, "chunk context failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"chunk_id": id, "window": window, "context": text})
}

type keywordHit struct {
	ChunkID      string   `json:"chunk_id"`
	DocumentID   string   `json:"document_id"`
	ChunkIndex   int      `json:"chunk_index"`
	SectionTitle string   `json:"section_title,omitempty"`
	Content      string   `json:"content"`
	Fragments    []string `json:"fragments,omitempty"`
	Score        float64  `json:"score"`
}

func (s *Server) handleKeywordSearch(w http.ResponseWriter, r *http.Request) {
	if s.Keywords == nil {
		s.respondError(w, http.StatusNotImplemented, "keyword index not enabled")
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, ok := s.intParam(w, r, "limit", defaultSearchLimit)
	if !ok {
		return
	}
	limit = min(max(limit, 1), maxSearchLimit)

	hits, err := s.Keywords.Search(r.Context(), q, limit, &keyword.SearchOptions{
		FuzzyEnabled: r.URL.Query().Get("fuzzy") == "true",
		Highlight:    keyword.HighlightHTML,
	})
	if err != nil {
		s.fail(w, "keyword search failed", err)
		return
	}
	out := make([]keywordHit, 0, len(hits))
	for _, h := range hits {
		c, err := s.Store.GetChunk(r.Context(), h.ChunkID)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			s.fail(w, "keyword search failed", err)
			return
		}
		out = append(out, keywordHit{
			ChunkID:      c.ID,
			DocumentID:   c.DocumentID,
			ChunkIndex:   c.ChunkIndex,
			SectionTitle: c.SectionTitle,
			Content:      c.Content,
			Fragments:    h.Fragments,
			Score:        h.Score,
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"query": q, "results": out, "total": len(out)})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.Syncer.Drain(r.Context(), s.cfg.Index.SyncBatchSize)
	if err != nil {
		s.fail(w, "index sync failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

type retrieveRequest struct {
	Query         string   `json:"query"`
	TopK          int      `json:"top_k,omitempty"`
	MinSimilarity *float64 `json:"min_similarity,omitempty"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	minSim := s.cfg.Retrieval.MinSimilarityOrDefault()
	if req.MinSimilarity != nil {
		minSim = *req.MinSimilarity
	}
	summary, err := s.Retriever.RetrieveWithMetadata(r.Context(), req.Query, req.TopK, minSim)
	if err != nil {
		s.fail(w, "retrieval failed", err)
		return
	}
	if summary.Results == nil {
		summary.Results = []*models.RetrievalResult{}
	}
	s.respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docs, err := s.Store.CountDocuments(ctx)
	if err != nil {
		s.fail(w, "health: count documents failed", err)
		return
	}
	chunks, err := s.Store.CountChunks(ctx)
	if err != nil {
		s.fail(w, "health: count chunks failed", err)
		return
	}
	vectors, err := s.Index.Size(ctx)
	if err != nil {
		s.fail(w, "health: vector index size failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"documents": docs,
		"chunks":    chunks,
		"vectors":   vectors,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	byStatus, err := s.Store.CountDocumentsByStatus(ctx)
	if err != nil {
		s.fail(w, "status: count documents failed", err)
		return
	}
	chunks, err := s.Store.CountChunks(ctx)
	if err != nil {
		s.fail(w, "status: count chunks failed", err)
		return
	}
	embedded, err := s.Store.CountEmbeddedChunks(ctx)
	if err != nil {
		s.fail(w, "status: count embedded chunks failed", err)
		return
	}
	vectors, err := s.Index.Size(ctx)
	if err != nil {
		s.fail(w, "status: vector index size failed", err)
		return
	}
	pending, err := s.Index.PendingCount(ctx)
	if err != nil {
		s.fail(w, "status: sync backlog failed", err)
		return
	}
	resp := map[string]any{
		"documents":         byStatus,
		"chunks":            chunks,
		"embedded_chunks":   embedded,
		"vectors":           vectors,
		"sync_pending":      pending,
		"embedding_model":   s.cfg.Embedding.Model,
		"chunk_size":        s.cfg.Chunking.ChunkSize,
		"chunk_overlap":     s.cfg.Chunking.ChunkOverlap,
		"database_path":     s.cfg.Storage.DatabasePath,
		"keyword_index_dir": s.cfg.Storage.KeywordIndexPath,
	}
	if usage, err := storage.MeasureDiskUsage(s.cfg.Storage.DatabasePath, s.cfg.Storage.KeywordIndexPath); err == nil {
		resp["disk_usage"] = usage
	} else {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// intParam reads an integer query parameter, answering 400 when it is malformed.
func (s *Server) intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("%s must be an integer", name))
		return 0, false
	}
	return n, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrProviderTransient):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
