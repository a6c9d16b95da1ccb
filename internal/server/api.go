// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vkomic/vkomic-core/pkg/downloadmgr"
	"github.com/vkomic/vkomic-core/pkg/vkapi"
)

// NodeRequest names the topic a vk_fetch_* command should act on.
type NodeRequest struct {
	GroupID string `json:"groupId"`
	TopicID string `json:"topicId"`
}

// QueueDownloadRequest is the body of fs_queue_download.
type QueueDownloadRequest struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Directory string `json:"directory"`
	FileName  string `json:"fileName"`
}

// CancelDownloadRequest is the body of fs_cancel_download.
type CancelDownloadRequest struct {
	ID string `json:"id"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// SuccessResponse represents a simple success acknowledgement.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// CancelDownloadResponse reports whether the cancelled id was known to
// the download manager, queued or active.
type CancelDownloadResponse struct {
	Cancelled bool `json:"cancelled"`
}

// ClearQueueResponse reports how many queued and active downloads were
// cancelled.
type ClearQueueResponse struct {
	Cancelled int `json:"cancelled"`
}

// handleHealth reports server liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleVKPing implements vk_ping: connectivity check, latency in
// milliseconds.
func (s *Server) handleVKPing(w http.ResponseWriter, r *http.Request) {
	latency, err := s.api.Ping(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"latencyMs": latency.Milliseconds()})
}

// handleFetchRootIndex implements vk_fetch_root_index: a shallow read of
// the configured root topic.
func (s *Server) handleFetchRootIndex(w http.ResponseWriter, r *http.Request) {
	node, err := s.crawler.FetchRootIndex(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// handleFetchFullIndex implements vk_fetch_full_index: the full
// multi-level crawl from the configured root.
func (s *Server) handleFetchFullIndex(w http.ResponseWriter, r *http.Request) {
	node, err := s.crawler.FetchFullIndex(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// handleFetchNodeContent implements vk_fetch_node_content: a single-topic
// head/full fetch for an arbitrary node, identified by group/topic id
// rather than by crawling from the root.
func (s *Server) handleFetchNodeContent(w http.ResponseWriter, r *http.Request) {
	var req NodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TopicID == "" {
		writeError(w, http.StatusBadRequest, "topicId is required")
		return
	}
	node, err := s.crawler.FetchNodeContent(r.Context(), req.GroupID, req.TopicID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// handleQueueDownload implements fs_queue_download.
func (s *Server) handleQueueDownload(w http.ResponseWriter, r *http.Request) {
	var req QueueDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "id and url are required")
		return
	}
	dir := req.Directory
	if dir == "" {
		dir = s.config.DownloadDir
	}
	s.downloads.Enqueue(downloadmgr.Task{
		ID:        req.ID,
		URL:       req.URL,
		Directory: dir,
		FileName:  req.FileName,
	})
	writeJSON(w, http.StatusAccepted, SuccessResponse{Success: true})
}

// handleCancelDownload implements fs_cancel_download.
func (s *Server) handleCancelDownload(w http.ResponseWriter, r *http.Request) {
	var req CancelDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cancelled := s.downloads.Cancel(req.ID)
	writeJSON(w, http.StatusOK, CancelDownloadResponse{Cancelled: cancelled})
}

// handleClearDownloadQueue implements fs_clear_download_queue.
func (s *Server) handleClearDownloadQueue(w http.ResponseWriter, r *http.Request) {
	n := s.downloads.ClearQueue()
	writeJSON(w, http.StatusOK, ClearQueueResponse{Cancelled: n})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeAPIError maps a vkapi/downloadmgr error onto a status code and its
// Kind, so clients can tell a cancelled request from a genuine failure
// without parsing message text.
func writeAPIError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	kind := "unknown"

	var ve *vkapi.Error
	var de *downloadmgr.Error
	switch {
	case errors.As(err, &ve):
		kind = string(ve.Kind)
		if ve.Kind == vkapi.KindInvalid {
			status = http.StatusBadRequest
		}
	case errors.As(err, &de):
		kind = string(de.Kind)
		if de.Kind == downloadmgr.KindInvalid {
			status = http.StatusBadRequest
		}
	}

	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}
