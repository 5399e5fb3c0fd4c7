// Package portal serves the captive provisioning page shown while the
// device runs its fallback access point.
package portal

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"wifi-go-home/internal/wifi"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	scanLimit     = 20
	statusPushGap = 2 * time.Second
)

// Manager is the slice of the wifi manager the portal needs.
type Manager interface {
	Scan(ctx context.Context, max int) ([]wifi.ScanResult, error)
	Status() wifi.Status
	Provision(ssid, password string) error
	ResetCredentials() error
}

// Server is the provisioning HTTP server. Start and Stop are driven by the
// wifi manager as it enters and leaves provisioning mode.
type Server struct {
	manager  Manager
	addr     string
	apSSID   string
	template *template.Template
	logger   *slog.Logger
	mux      *http.ServeMux

	mu     sync.Mutex
	srv    *http.Server
	hub    *wsHub
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(manager Manager, addr, apSSID string, logger *slog.Logger) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/portal.html")
	if err != nil {
		return nil, fmt.Errorf("parse portal template: %w", err)
	}
	s := &Server{
		manager:  manager,
		addr:     addr,
		apSSID:   apSSID,
		template: tmpl,
		logger:   logger.With("component", "portal"),
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /scan", s.handleScan)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /connect", s.handleConnect)
	s.mux.HandleFunc("POST /reset", s.handleReset)
	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// Start brings the server up. Idempotent while running.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.hub = newWSHub(s.logger)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.hub.run()
	}()
	go func() {
		defer s.wg.Done()
		s.pushStatus(ctx)
	}()

	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.srv = srv

	go func() {
		s.logger.Info("portal listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("portal server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down. Idempotent.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	cancel := s.cancel
	hub := s.hub
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	cancel()
	hub.stop()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	err := srv.Shutdown(ctx)
	s.wg.Wait()
	return err
}

// pushStatus broadcasts the connection status to WebSocket clients until
// the server stops.
func (s *Server) pushStatus(ctx context.Context) {
	ticker := time.NewTicker(statusPushGap)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hub.broadcast(s.manager.Status())
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := s.template.Execute(&buf, map[string]any{
		"APSSID": s.apSSID,
		"Status": s.manager.Status(),
	})
	if err != nil {
		s.logger.Error("render portal page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	results, err := s.manager.Scan(r.Context(), scanLimit)
	if err != nil {
		s.logger.Error("scan failed", "error", err)
		http.Error(w, "scan failed", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []wifi.ScanResult{}
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Status())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SSID     string `json:"ssid"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SSID == "" {
		http.Error(w, "ssid is required", http.StatusBadRequest)
		return
	}
	if err := s.manager.Provision(req.SSID, req.Password); err != nil {
		s.logger.Error("provision failed", "ssid", req.SSID, "error", err)
		http.Error(w, "failed to save credentials", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "credentials saved, device restarting"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.ResetCredentials(); err != nil {
		s.logger.Error("credential reset failed", "error", err)
		http.Error(w, "failed to reset credentials", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "credentials cleared, device restarting"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write json response", "error", err)
	}
}

// ServeHTTP exposes the mux for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
