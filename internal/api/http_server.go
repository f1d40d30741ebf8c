package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"itinera/internal/config"
	"itinera/internal/document"
	"itinera/internal/domain"
	"itinera/internal/metrics"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const (
	apiPrefix       = "/api/v1"
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 1 << 20
)

// Deps are the collaborators the HTTP layer dispatches to.
type Deps struct {
	Itineraries domain.ItineraryService
	Drafts      domain.DraftService
	Exporter    *document.Exporter
	Hub         *Hub
	Ping        func(ctx context.Context) error
}

// HTTPServer exposes the consultant dashboard API, the client share view and
// the live-update websockets.
type HTTPServer struct {
	cfg     config.APIConfig
	deps    Deps
	limiter *rateLimiter
	router  *httprouter.Router
	handler http.Handler
	server  *http.Server
	logger  *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	l := logger.With().Str("component", "http").Logger()
	srv := &HTTPServer{
		cfg:     cfg,
		deps:    deps,
		limiter: newRateLimiter(cfg.RateLimit),
		router:  httprouter.New(),
		logger:  &l,
	}
	srv.routes()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORS.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
	}).Handler(srv.limiter.Wrap(srv.router))

	srv.handler = srv.loggingMiddleware(securityHeaders(corsHandler))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes() {
	r := s.router
	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.PanicHandler = func(w http.ResponseWriter, req *http.Request, v interface{}) {
		s.logger.Error().Interface("panic", v).Str("path", req.URL.Path).Msg("handler panic")
		writeError(w, http.StatusInternalServerError, "internal error")
	}

	s.handle(http.MethodGet, "/health", s.handleHealth)

	// GET /itineraries/stats and POST /itineraries/preview share the :id
	// segment; the handlers dispatch on the literal value.
	s.handle(http.MethodGet, "/itineraries", s.handleListItineraries)
	s.handle(http.MethodPost, "/itineraries", s.handleCreateItinerary)
	s.handle(http.MethodGet, "/itineraries/:id", s.handleGetItinerary)
	s.handle(http.MethodPost, "/itineraries/:id", s.handlePostItinerary)
	s.handle(http.MethodPatch, "/itineraries/:id", s.handleUpdateItinerary)
	s.handle(http.MethodDelete, "/itineraries/:id", s.handleDeleteItinerary)
	s.handle(http.MethodPost, "/itineraries/:id/share", s.handleShareItinerary)
	s.handle(http.MethodPost, "/itineraries/:id/complete", s.handleCompleteItinerary)
	s.handle(http.MethodPost, "/itineraries/:id/comments/:commentID/reply", s.handleReplyComment)
	s.handle(http.MethodPost, "/itineraries/:id/comments/:commentID/resolve", s.handleResolveComment)
	s.handle(http.MethodGet, "/itineraries/:id/export.pdf", s.handleExportPDF)
	s.handle(http.MethodGet, "/itineraries/:id/preview.html", s.handlePreviewHTML)
	s.handle(http.MethodGet, "/itineraries/:id/share-qr.png", s.handleShareQR)
	s.handle(http.MethodGet, "/exports/dashboard.xlsx", s.handleDashboardXLSX)

	s.handle(http.MethodGet, "/shared/:token", s.handleGetShared)
	s.handle(http.MethodPost, "/shared/:token/comments", s.handleAddComment)
	s.handle(http.MethodPost, "/shared/:token/approve", s.handleApprove)
	s.handle(http.MethodGet, "/shared/:token/export.pdf", s.handleSharedPDF)

	s.handle(http.MethodGet, "/drafts/:id", s.handleGetDraft)
	s.handle(http.MethodPut, "/drafts/:id", s.handleSaveDraft)
	s.handle(http.MethodDelete, "/drafts/:id", s.handleClearDraft)
	s.handle(http.MethodPost, "/drafts/:id/generate", s.handleGenerateFromDraft)

	s.handle(http.MethodGet, "/ws/itineraries/:id", s.handleItineraryWS)
	s.handle(http.MethodGet, "/ws/shared/:token", s.handleSharedWS)
}

// handle registers h under the API prefix and counts responses per route.
func (s *HTTPServer) handle(method, path string, h httprouter.Handle) {
	route := apiPrefix + path
	s.router.Handle(method, route, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		rec, ok := w.(*statusRecorder)
		if !ok {
			rec = &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		}
		h(rec, r, ps)
		metrics.IncHTTP(method+" "+route, strconv.Itoa(rec.status))
	})
}

// Handler returns the full middleware chain, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", clientKey(r)).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	r.wroteHeader = true
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
