// Package web serves the breathing-led status page, its JSON feed and a
// liveness check.
package web

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"time"

	"github.com/sweeney/breathing-led/internal/status"
)

// Server is the status HTTP server. It only reads from the tracker.
type Server struct {
	http    *http.Server
	tracker *status.Tracker
}

// New routes the status endpoints for tracker. Nothing listens until
// ListenAndServe.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.page)
	mux.HandleFunc("GET /index.html", s.page)
	mux.HandleFunc("GET /index.json", s.feed)
	mux.HandleFunc("GET /healthz", s.health)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router so tests can mount it on httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until Shutdown; it then returns http.ErrServerClosed.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// page renders the HTML view. The page polls /index.json itself, so
// rendering is buffered and a template failure becomes a 500.
func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := renderHTML(&buf, s.tracker.Snapshot()); err != nil {
		log.Printf("web: render status page: %v", err)
		http.Error(w, "status page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// feed is polled every 500ms by the page; intermediaries must not cache it.
func (s *Server) feed(w http.ResponseWriter, r *http.Request) {
	body := status.FormatJSON(s.tracker.Snapshot())
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.Write(body)
}

// health answers 200 while the LED is breathing and 503 otherwise, with the
// lifecycle as the body.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	lifecycle := s.tracker.Snapshot().Lifecycle
	if lifecycle == "" {
		lifecycle = "UNKNOWN"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if lifecycle != "RUNNING" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Write([]byte(lifecycle + "\n"))
}
