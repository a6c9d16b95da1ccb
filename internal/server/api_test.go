// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer() *Server {
	cfg := Config{
		Addr:        "127.0.0.1",
		Port:        0,
		DownloadDir: "./test_downloads",
		MaxActive:   1,
		RootGroupID: "1",
		RootTopicID: "1",
	}
	return New(cfg)
}

func TestAPI_Health(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
}

func TestAPI_FetchNodeContent_RequiresTopicID(t *testing.T) {
	srv := newTestServer()

	body, _ := json.Marshal(NodeRequest{GroupID: "1"})
	req := httptest.NewRequest(http.MethodPost, "/api/vk/node", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleFetchNodeContent(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing topicId, got %d", w.Code)
	}
}

func TestAPI_QueueDownload_RequiresIDAndURL(t *testing.T) {
	srv := newTestServer()
	srv.downloads = srv.newTestDownloadManager()

	body, _ := json.Marshal(QueueDownloadRequest{FileName: "x.bin"})
	req := httptest.NewRequest(http.MethodPost, "/api/fs/queue", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleQueueDownload(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing id/url, got %d", w.Code)
	}
}

func TestAPI_QueueDownload_Accepted(t *testing.T) {
	srv := newTestServer()
	srv.downloads = srv.newTestDownloadManager()

	body, _ := json.Marshal(QueueDownloadRequest{ID: "d1", URL: "https://example.invalid/f", FileName: "f.bin"})
	req := httptest.NewRequest(http.MethodPost, "/api/fs/queue", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleQueueDownload(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
}

func TestAPI_ClearDownloadQueue(t *testing.T) {
	srv := newTestServer()
	srv.downloads = srv.newTestDownloadManager()

	req := httptest.NewRequest(http.MethodPost, "/api/fs/clear", nil)
	w := httptest.NewRecorder()
	srv.handleClearDownloadQueue(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ClearQueueResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Cancelled != 0 {
		t.Errorf("expected 0 cancelled on an empty manager, got %d", resp.Cancelled)
	}
}

func TestAPI_CancelDownload_UnknownID(t *testing.T) {
	srv := newTestServer()
	srv.downloads = srv.newTestDownloadManager()

	body, _ := json.Marshal(CancelDownloadRequest{ID: "nope"})
	req := httptest.NewRequest(http.MethodPost, "/api/fs/cancel", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleCancelDownload(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp CancelDownloadResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Cancelled {
		t.Errorf("expected cancelled=false for an unknown id")
	}
}

func TestAPI_CancelDownload_QueuedID(t *testing.T) {
	srv := newTestServer()
	srv.downloads = srv.newTestDownloadManager()

	srv.handleQueueDownload(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/fs/queue",
		bytes.NewReader(mustJSON(QueueDownloadRequest{ID: "d1", URL: "https://example.invalid/f", FileName: "f.bin"}))))

	body, _ := json.Marshal(CancelDownloadRequest{ID: "d1"})
	req := httptest.NewRequest(http.MethodPost, "/api/fs/cancel", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleCancelDownload(w, req)

	var resp CancelDownloadResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Cancelled {
		t.Errorf("expected cancelled=true for a queued id")
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
