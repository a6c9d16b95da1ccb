// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the crawler and download manager over HTTP and
// WebSocket, standing in for the desktop shell's command/event channel.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/vkomic/vkomic-core/internal/metrics"
	"github.com/vkomic/vkomic-core/pkg/crawler"
	"github.com/vkomic/vkomic-core/pkg/downloadmgr"
	"github.com/vkomic/vkomic-core/pkg/vkapi"
)

// Config holds server configuration.
type Config struct {
	Addr string
	Port int

	Token         string // VK API access token
	RootGroupID   string
	RootTopicID   string
	ComicsTopicID string

	DownloadDir    string
	MaxActive      int
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:        "0.0.0.0",
		Port:        8080,
		DownloadDir: "./downloads",
		MaxActive:   3,
	}
}

// Server is the HTTP server fronting the crawler and download manager.
type Server struct {
	config     Config
	httpServer *http.Server
	wsHub      *WSHub
	api        *vkapi.Client
	crawler    *crawler.Crawler
	downloads  *downloadmgr.Manager
}

// New creates a Server from cfg. The download manager is constructed
// lazily in ListenAndServe since its lifetime is tied to the serve
// context.
func New(cfg Config) *Server {
	api := vkapi.New(cfg.Token)
	return &Server{
		config:  cfg,
		wsHub:   NewWSHub(),
		api:     api,
		crawler: crawler.New(api, crawler.Config{RootGroupID: cfg.RootGroupID, RootTopicID: cfg.RootTopicID, ComicsTopicID: cfg.ComicsTopicID}),
	}
}

// ListenAndServe starts the WebSocket hub, the download manager, and the
// HTTP server, and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go s.wsHub.Run()

	s.downloads = downloadmgr.New(ctx, s.config.MaxActive, http.DefaultClient, s.onDownloadProgress, s.onDownloadResult)

	mux := http.NewServeMux()
	s.registerAPIRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	addr := fmt.Sprintf("%s:%d", s.config.Addr, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.corsMiddleware(s.loggingMiddleware(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("vkomic-core server listening on http://%s", addr)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) onDownloadProgress(ev downloadmgr.ProgressEvent) {
	s.wsHub.Broadcast("download-progress", ev)
}

func (s *Server) onDownloadResult(ev downloadmgr.ResultEvent) {
	s.wsHub.Broadcast("download-result", ev)
}

// registerAPIRoutes sets up every endpoint named in the command surface.
func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/vk/ping", s.handleVKPing)
	mux.HandleFunc("POST /api/vk/root-index", s.handleFetchRootIndex)
	mux.HandleFunc("POST /api/vk/full-index", s.handleFetchFullIndex)
	mux.HandleFunc("POST /api/vk/node", s.handleFetchNodeContent)

	mux.HandleFunc("POST /api/fs/queue", s.handleQueueDownload)
	mux.HandleFunc("POST /api/fs/cancel", s.handleCancelDownload)
	mux.HandleFunc("POST /api/fs/clear", s.handleClearDownloadQueue)

	mux.HandleFunc("GET /api/ws", s.handleWebSocket)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			allowed := len(s.config.AllowedOrigins) == 0
			for _, o := range s.config.AllowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
