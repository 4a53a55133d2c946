// Package httpapi exposes template management and generation over JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/amishk599/vacancybot/internal/model"
	"github.com/amishk599/vacancybot/internal/pipeline"
)

const maxBodyBytes = 1 << 20

// Runner produces an announcement from raw vacancy input.
type Runner interface {
	Run(ctx context.Context, userID, input string, progress func(pipeline.Stage)) (model.Announcement, error)
}

// Server is the JSON API.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	store      model.TemplateStore
	runner     Runner
	logger     *slog.Logger
}

// New creates a Server listening on addr. requestTimeout bounds each request,
// generation included.
func New(addr string, requestTimeout time.Duration, store model.TemplateStore, runner Runner, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		store:  store,
		runner: runner,
		logger: logger,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.logRequests)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(requestTimeout))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/v1", func(r chi.Router) {
		r.Route("/templates/{userID}", func(r chi.Router) {
			r.Get("/", s.handleGetTemplate)
			r.Put("/", s.handlePutTemplate)
			r.Patch("/description", s.handlePatchDescription)
		})
		r.Post("/generate", s.handleGenerate)
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http api", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve http: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	s.logger.Info("http api stopped")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set(middleware.RequestIDHeader, middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}

type templateBody struct {
	Template    string `json:"template"`
	Description string `json:"description"`
}

type descriptionBody struct {
	Description string `json:"description"`
}

type generateBody struct {
	UserID string `json:"user_id"`
	Input  string `json:"input"`
}

type announcementBody struct {
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	SourceURL string    `json:"source_url,omitempty"`
	Fallback  bool      `json:"fallback"`
	CreatedAt time.Time `json:"created_at"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	tmpl, ok, err := s.store.GetTemplate(userID)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		s.respondJSON(w, http.StatusNotFound, errorBody{Error: model.ErrNoTemplate.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, templateBody{Template: tmpl.Text, Description: tmpl.Description})
}

func (s *Server) handlePutTemplate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var body templateBody
	if !s.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Template) == "" {
		s.respondJSON(w, http.StatusBadRequest, errorBody{Error: "template is required"})
		return
	}
	if err := s.store.SetTemplate(userID, body.Template, body.Description); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, body)
}

func (s *Server) handlePatchDescription(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var body descriptionBody
	if !s.decode(w, r, &body) {
		return
	}

	tmpl, ok, err := s.store.GetTemplate(userID)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		s.respondJSON(w, http.StatusNotFound, errorBody{Error: model.ErrNoTemplate.Error()})
		return
	}
	if err := s.store.UpdateDescription(userID, body.Description); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, templateBody{Template: tmpl.Text, Description: body.Description})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateBody
	if !s.decode(w, r, &body) {
		return
	}
	if body.UserID == "" || strings.TrimSpace(body.Input) == "" {
		s.respondJSON(w, http.StatusBadRequest, errorBody{Error: "user_id and input are required"})
		return
	}

	a, err := s.runner.Run(r.Context(), body.UserID, body.Input, nil)
	switch {
	case errors.Is(err, model.ErrNoTemplate):
		s.respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
		return
	case err != nil:
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}

	s.respondJSON(w, http.StatusOK, announcementBody{
		RequestID: a.RequestID,
		UserID:    a.UserID,
		Text:      a.Text,
		SourceURL: a.SourceURL,
		Fallback:  a.Fallback,
		CreatedAt: a.CreatedAt,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encode json response", "error", err)
	}
}

// respondError logs err and hides it from the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.logger.Error("request failed",
		"request_id", middleware.GetReqID(r.Context()),
		"path", r.URL.Path,
		"kind", model.Kind(err),
		"error", err,
	)
	s.respondJSON(w, status, errorBody{Error: http.StatusText(status)})
}
