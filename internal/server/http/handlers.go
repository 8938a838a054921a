package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/foodmine/literature-mining-service/internal/domain"
	"github.com/foodmine/literature-mining-service/internal/store"
)

const maxRequestBodySize = 1 << 20

// startScrapeRequest is the JSON body for POST /scrapes.
type startScrapeRequest struct {
	Keyword    string   `json:"keyword" validate:"required,min=2,max=200"`
	Subject    string   `json:"subject" validate:"omitempty,max=200"`
	Sources    []string `json:"sources" validate:"omitempty,dive,oneof=springer elsevier pubmed s2orc"`
	MaxResults int      `json:"max_results" validate:"omitempty,gte=1,lte=1000000"`
	SaveAll    bool     `json:"save_all"`
	GeneralTag string   `json:"general_tag" validate:"omitempty,min=1,max=100"`
	CorpusPath string   `json:"corpus_path" validate:"omitempty,max=4096"`
}

// retagRequest is the JSON body for POST /tags/retag.
type retagRequest struct {
	From string `json:"from" validate:"required,min=1,max=100"`
	To   string `json:"to" validate:"required,min=1,max=100,nefield=From"`
}

// startScrape handles POST /api/v1/scrapes. The session runs in the
// background; the response carries the session ID for status polling.
func (s *Server) startScrape(w http.ResponseWriter, r *http.Request) {
	var req startScrapeRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	sources := make([]domain.SourceType, len(req.Sources))
	for i, src := range req.Sources {
		sources[i] = domain.SourceType(src)
	}

	sessionID := uuid.NewString()
	cfg := store.SessionConfig{
		SessionID:  sessionID,
		Keyword:    req.Keyword,
		Subject:    req.Subject,
		Sources:    sources,
		MaxResults: req.MaxResults,
		CorpusPath: req.CorpusPath,
		SaveAll:    req.SaveAll,
		GeneralTag: req.GeneralTag,
	}

	s.sessions.start(sessionID, req.Keyword)
	s.logger.Info().
		Str("session_id", sessionID).
		Str("keyword", req.Keyword).
		Str("correlation_id", correlationIDFromContext(r.Context())).
		Msg("Scrape session accepted")

	go func() {
		// The session outlives the triggering request.
		report, err := s.runner.Run(context.Background(), cfg)
		if err != nil {
			s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Scrape session failed")
			s.sessions.fail(sessionID, err)
			return
		}
		s.sessions.complete(sessionID, report)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": sessionID,
		"status":     sessionStatusRunning,
	})
}

// getScrapeSession handles GET /api/v1/scrapes/{sessionID}.
func (s *Server) getScrapeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	state, ok := s.sessions.get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "scrape session not found")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// listTagCounts handles GET /api/v1/tags.
func (s *Server) listTagCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.repo.CountByTag(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to count articles by tag")
		writeError(w, http.StatusInternalServerError, "failed to count articles by tag")
		return
	}
	writeJSON(w, http.StatusOK, tagCountsResponse{Tags: counts})
}

// getTagCount handles GET /api/v1/tags/{tag}.
func (s *Server) getTagCount(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	count, err := s.repo.CountWithTag(r.Context(), tag)
	if err != nil {
		s.logger.Error().Err(err).Str("tag", tag).Msg("Failed to count articles with tag")
		writeError(w, http.StatusInternalServerError, "failed to count articles with tag")
		return
	}
	writeJSON(w, http.StatusOK, tagCountResponse{Tag: tag, Count: count})
}

// exportProcessedAbstracts handles GET /api/v1/tags/{tag}/abstracts. It
// streams the tag's processed abstracts as newline-delimited JSON, one
// record per article in insertion order, for external model training.
func (s *Server) exportProcessedAbstracts(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")

	w.Header().Set("Content-Type", "application/x-ndjson")
	encoder := json.NewEncoder(w)

	var streamed int64
	err := s.repo.StreamProcessedAbstracts(r.Context(), tag, func(id uuid.UUID, processed string) error {
		streamed++
		return encoder.Encode(processedAbstractRecord{ID: id, ProcessedAbstract: processed})
	})
	if err != nil {
		s.logger.Error().Err(err).Str("tag", tag).Int64("streamed", streamed).Msg("Failed to stream processed abstracts")
		if streamed == 0 {
			// Headers are already out once the first record is written.
			writeError(w, http.StatusInternalServerError, "failed to stream processed abstracts")
		}
		return
	}
}

// retagArticles handles POST /api/v1/tags/retag.
func (s *Server) retagArticles(w http.ResponseWriter, r *http.Request) {
	var req retagRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	modified, err := s.repo.RetagArticles(r.Context(), req.From, req.To)
	if err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			writeError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		s.logger.Error().Err(err).Str("from", req.From).Str("to", req.To).Msg("Failed to retag articles")
		writeError(w, http.StatusInternalServerError, "failed to retag articles")
		return
	}
	writeJSON(w, http.StatusOK, retagResponse{From: req.From, To: req.To, Modified: modified})
}

// getArticleByIdentity handles GET /api/v1/articles?doi=... (or uid, pmc,
// paperid). Exactly one identity parameter must be supplied.
func (s *Server) getArticleByIdentity(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var field domain.IdentityField
	var value string
	var supplied int
	for _, f := range []domain.IdentityField{
		domain.IdentityFieldDOI,
		domain.IdentityFieldUID,
		domain.IdentityFieldPMC,
		domain.IdentityFieldPaperID,
	} {
		if v := query.Get(string(f)); v != "" {
			field, value = f, v
			supplied++
		}
	}
	if supplied != 1 {
		writeError(w, http.StatusBadRequest, "exactly one of doi, uid, pmc, paperid is required")
		return
	}

	article, err := s.repo.GetByIdentity(r.Context(), field, value)
	if err != nil {
		s.writeArticleError(w, err, string(field), value)
		return
	}
	writeJSON(w, http.StatusOK, articleToResponse(article))
}

// getArticleByID handles GET /api/v1/articles/{articleID}.
func (s *Server) getArticleByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "articleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid article ID")
		return
	}

	article, err := s.repo.GetByID(r.Context(), id)
	if err != nil {
		s.writeArticleError(w, err, "id", id.String())
		return
	}
	writeJSON(w, http.StatusOK, articleToResponse(article))
}

func (s *Server) writeArticleError(w http.ResponseWriter, err error, field, value string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "article not found")
	default:
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			writeError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		s.logger.Error().Err(err).Str(field, value).Msg("Failed to load article")
		writeError(w, http.StatusInternalServerError, "failed to load article")
	}
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// On failure it writes the error response and returns false.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			writeError(w, http.StatusInternalServerError, "request validation failed")
			return false
		}
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage renders the first field violation as a client message.
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "min":
			return fe.Field() + " is too short"
		case "max":
			return fe.Field() + " is too long"
		case "oneof":
			return fe.Field() + " contains an unknown value"
		case "nefield":
			return fe.Field() + " must differ from " + fe.Param()
		case "gte", "lte":
			return fe.Field() + " is out of range"
		}
		return fe.Field() + " is invalid"
	}
	return "invalid request"
}
