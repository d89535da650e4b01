// Package admin exposes BlinkDB's operational surface over HTTP: health,
// a JSON stats snapshot and a human-readable debug dump, routed with the
// teacher's chi.Mux + middleware.Logger pattern (SPEC_FULL.md §6).
package admin

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"blinkdb/internal/engine"
)

type Server struct {
	httpAddr string
	router   *chi.Mux
	eng      *engine.Engine
}

func NewServer(addr string, eng *engine.Engine) *Server {
	s := &Server{httpAddr: addr, router: chi.NewRouter(), eng: eng}
	s.router.Use(middleware.Logger)
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/stats", s.handleStats)
	s.router.Get("/debug/tree", s.handleDebugTree)
}

func (s *Server) ListenAndServe() error {
	return http.ListenAndServe(s.httpAddr, s.router)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.eng.Stats()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleDebugTree(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, s.eng.DebugTree())
}
