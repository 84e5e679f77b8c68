// Package server implements the HTTP request dispatcher for xtts-server.
//
// Exactly two routes exist: a health check and a synthesis endpoint. The
// listener is not started until the model is loaded and the conditioning
// state is cached, so a reachable server is by definition a ready server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/book-expert/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/book-expert/xtts-server/internal/core"
)

const (
	routeHealth     = "/health"
	routeSynthesize = "/synthesize"

	headerContentType   = "Content-Type"
	headerContentLength = "Content-Length"
	contentTypeJSON     = "application/json"
	contentTypeWAV      = "audio/wav"

	healthBody = `{"status":"ok"}`

	textPreviewLimit = 50
	corsMaxAge       = 300
	shutdownTimeout  = 5 * time.Second

	// Only the header read is bounded; synthesis itself has no deadline.
	readHeaderTimeout = 10 * time.Second
)

// Error messages returned to clients.
const (
	errMsgInvalidJSON = "invalid JSON body"
	errMsgMissingText = "missing 'text' field"
)

// synthesizeRequest is the typed body of POST /synthesize.
type synthesizeRequest struct {
	Text string `json:"text"`
}

// Server dispatches HTTP requests to the synthesis capability.
type Server struct {
	speaker core.Speaker
	log     *logger.Logger
}

// New creates a dispatcher around a ready Speaker.
func New(speaker core.Speaker, log *logger.Logger) *Server {
	return &Server{
		speaker: speaker,
		log:     log,
	}
}

// Router builds the two-route handler. Anything else, including known paths
// hit with the wrong method, is a 404.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         corsMaxAge,
	}))

	router.Get(routeHealth, s.handleHealth)
	router.Post(routeSynthesize, s.handleSynthesize)

	router.NotFound(s.handleNotFound)
	router.MethodNotAllowed(s.handleNotFound)

	return router
}

// ListenAndServe serves until ctx is cancelled, then shuts the listener down
// gracefully. An in-flight synthesis is allowed to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		s.log.System("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			s.log.Error("HTTP server shutdown error: %v", shutdownErr)
		}
	}()

	s.log.System("HTTP server listening on %s", addr)

	err := httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(healthBody))
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest

	decodeErr := json.NewDecoder(r.Body).Decode(&req)
	if decodeErr != nil {
		http.Error(w, errMsgInvalidJSON, http.StatusBadRequest)

		return
	}

	if req.Text == "" {
		http.Error(w, errMsgMissingText, http.StatusBadRequest)

		return
	}

	s.log.Info("Synthesizing: %s", preview(req.Text))

	wavBytes, synthErr := s.speaker.Synthesize(r.Context(), req.Text)
	if synthErr != nil {
		s.log.Error("Synthesis failed: %v", synthErr)
		http.Error(w, synthErr.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set(headerContentType, contentTypeWAV)
	w.Header().Set(headerContentLength, strconv.Itoa(len(wavBytes)))
	w.WriteHeader(http.StatusOK)

	_, writeErr := w.Write(wavBytes)
	if writeErr != nil {
		s.log.Warn("Failed to write audio response: %v", writeErr)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
}

// preview truncates text for logging.
func preview(input string) string {
	runes := []rune(input)
	if len(runes) <= textPreviewLimit {
		return input
	}

	return string(runes[:textPreviewLimit]) + "..."
}
