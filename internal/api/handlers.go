package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"itinera/internal/database"
	"itinera/internal/document"
	"itinera/internal/models"
	"itinera/internal/service"
	"itinera/internal/workflow"

	"github.com/julienschmidt/httprouter"
)

type itineraryResponse struct {
	Itinerary *models.Itinerary `json:"itinerary"`
	Redirect  string            `json:"redirect,omitempty"`
}

type shareResponse struct {
	Itinerary  *models.Itinerary `json:"itinerary"`
	ShareToken string            `json:"share_token"`
	SharePath  string            `json:"share_path"`
	ShareURL   string            `json:"share_url"`
}

type commentResponse struct {
	Itinerary *models.Itinerary `json:"itinerary"`
	Comment   *models.Comment   `json:"comment"`
}

type updateRequest struct {
	models.ItineraryPatch
	Version int64 `json:"version,omitempty"`
}

type replyRequest struct {
	Content string `json:"content"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.deps.Ping != nil {
		if err := s.deps.Ping(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleListItineraries(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	filter := models.ItineraryFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Status: strings.TrimSpace(q.Get("status")),
	}
	if filter.Status != "" && filter.Status != "all" && !models.ValidStatus(filter.Status) {
		s.writeServiceError(w, r, models.NewValidationError("status", "is unknown"))
		return
	}

	items, err := s.deps.Itineraries.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []*models.Itinerary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"itineraries": items})
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Itineraries.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleCreateItinerary(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var settings models.TripSettings
	if err := decodeJSON(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	it, redirect, err := s.deps.Itineraries.Generate(r.Context(), settings)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, itineraryResponse{Itinerary: it, Redirect: redirect})
}

func (s *HTTPServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	var settings models.TripSettings
	if err := decodeJSON(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	it, err := s.deps.Itineraries.Preview(r.Context(), settings)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itineraryResponse{Itinerary: it})
}

func (s *HTTPServer) handleGetItinerary(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == "stats" {
		s.handleStats(w, r)
		return
	}

	it, err := s.deps.Itineraries.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itineraryResponse{Itinerary: it})
}

func (s *HTTPServer) handlePostItinerary(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if ps.ByName("id") == "preview" {
		s.handlePreview(w, r)
		return
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *HTTPServer) handleUpdateItinerary(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	it, err := s.deps.Itineraries.Update(r.Context(), ps.ByName("id"), req.ItineraryPatch, req.Version)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itineraryResponse{Itinerary: it})
}

func (s *HTTPServer) handleDeleteItinerary(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.deps.Itineraries.Delete(r.Context(), ps.ByName("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleShareItinerary(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	it, path, err := s.deps.Itineraries.Share(r.Context(), ps.ByName("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shareResponse{
		Itinerary:  it,
		ShareToken: it.ShareToken,
		SharePath:  path,
		ShareURL:   s.shareURL(it.ShareToken),
	})
}

func (s *HTTPServer) handleCompleteItinerary(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	it, err := s.deps.Itineraries.Complete(r.Context(), ps.ByName("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itineraryResponse{Itinerary: it})
}

func (s *HTTPServer) handleReplyComment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req replyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	it, reply, err := s.deps.Itineraries.Reply(r.Context(), ps.ByName("id"), ps.ByName("commentID"), req.Content)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, commentResponse{Itinerary: it, Comment: reply})
}

func (s *HTTPServer) handleResolveComment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	it, err := s.deps.Itineraries.ResolveComment(r.Context(), ps.ByName("id"), ps.ByName("commentID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itineraryResponse{Itinerary: it})
}

func (s *HTTPServer) handleExportPDF(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	it, err := s.deps.Itineraries.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writePDF(w, r, it)
}

func (s *HTTPServer) handleSharedPDF(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	it, err := s.deps.Itineraries.GetByShareToken(r.Context(), ps.ByName("token"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writePDF(w, r, it)
}

func (s *HTTPServer) writePDF(w http.ResponseWriter, r *http.Request, it *models.Itinerary) {
	var buf bytes.Buffer
	if err := s.deps.Exporter.PDF(r.Context(), &buf, it, s.exportOptions(it)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeFile(w, "application/pdf", fileName(it.Title, "pdf"), buf.Bytes())
}

func (s *HTTPServer) handlePreviewHTML(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	it, err := s.deps.Itineraries.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.deps.Exporter.HTML(&buf, it, s.exportOptions(it)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) handleShareQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	it, err := s.deps.Itineraries.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if it.ShareToken == "" || it.Status == models.StatusDraft {
		writeError(w, http.StatusConflict, "itinerary is not shared yet")
		return
	}

	png, err := s.deps.Exporter.QR(s.shareURL(it.ShareToken))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *HTTPServer) handleDashboardXLSX(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	items, err := s.deps.Itineraries.List(r.Context(), models.ItineraryFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Status: strings.TrimSpace(q.Get("status")),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.deps.Exporter.Dashboard(&buf, items); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "itineraries.xlsx", buf.Bytes())
}

func (s *HTTPServer) handleGetShared(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	it, err := s.deps.Itineraries.GetByShareToken(r.Context(), ps.ByName("token"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itineraryResponse{Itinerary: it})
}

func (s *HTTPServer) handleAddComment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var input models.CommentInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	it, comment, err := s.deps.Itineraries.AddClientComment(r.Context(), ps.ByName("token"), input)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, commentResponse{Itinerary: it, Comment: comment})
}

func (s *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	it, err := s.deps.Itineraries.Approve(r.Context(), ps.ByName("token"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itineraryResponse{Itinerary: it})
}

func (s *HTTPServer) handleGetDraft(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	draft, err := s.deps.Drafts.GetDraft(r.Context(), ps.ByName("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if draft == nil {
		s.writeServiceError(w, r, service.ErrDraftNotFound)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) handleSaveDraft(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var settings models.TripSettings
	if err := decodeJSON(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	draft, err := s.deps.Drafts.SaveDraft(r.Context(), ps.ByName("id"), settings)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) handleClearDraft(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.deps.Drafts.ClearDraft(r.Context(), ps.ByName("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleGenerateFromDraft(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	it, redirect, err := s.deps.Drafts.GenerateFromDraft(r.Context(), ps.ByName("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, itineraryResponse{Itinerary: it, Redirect: redirect})
}

func (s *HTTPServer) handleItineraryWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	it, err := s.deps.Itineraries.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.deps.Hub.Serve(w, r, it.ID)
}

func (s *HTTPServer) handleSharedWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	it, err := s.deps.Itineraries.GetByShareToken(r.Context(), ps.ByName("token"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.deps.Hub.Serve(w, r, it.ID)
}

// writeServiceError maps domain errors onto HTTP status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, database.ErrItineraryNotFound),
		errors.Is(err, database.ErrCommentNotFound),
		errors.Is(err, service.ErrDraftNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrConcurrentModification),
		errors.Is(err, workflow.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *HTTPServer) shareURL(token string) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + service.SharePath(token)
}

func (s *HTTPServer) exportOptions(it *models.Itinerary) document.Options {
	var opts document.Options
	if it.ShareToken != "" && it.Status != models.StatusDraft {
		opts.ShareURL = s.shareURL(it.ShareToken)
	}
	return opts
}

func writeFile(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// fileName делает безопасное имя файла из заголовка
func fileName(title, ext string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	name := strings.TrimRight(b.String(), "-")
	if name == "" {
		name = "itinerary"
	}
	return name + "." + ext
}
