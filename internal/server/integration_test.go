// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

//go:build integration

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"
)

// getFreePort finds an available port.
func getFreePort() int {
	l, _ := net.Listen("tcp", "127.0.0.1:0")
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// Run with: go test -tags=integration -v ./internal/server/
//
// Unlike a live-network integration suite, these tests exercise the
// server end to end against the host's real HTTP stack while targeting
// only local fixtures: no calls reach api.vk.com, since these tests only
// hit the health, download-queue and metrics routes, none of which use
// the VK API client.

func TestIntegration_HealthAndDownloadQueue(t *testing.T) {
	port := getFreePort()
	dir := t.TempDir()
	cfg := Config{
		Addr:        "127.0.0.1",
		Port:        port,
		DownloadDir: dir,
		MaxActive:   2,
		RootGroupID: "1",
		RootTopicID: "1",
	}

	srv := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.ListenAndServe(ctx)
	time.Sleep(200 * time.Millisecond)

	baseURL := "http://127.0.0.1:" + strconv.Itoa(port)

	t.Run("health check", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/health")
		if err != nil {
			t.Fatalf("health check failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("queue and cancel a download", func(t *testing.T) {
		fileSrv := http.Server{Addr: "127.0.0.1:0"}
		_ = fileSrv // placeholder kept minimal: queueing is enough to
		// exercise fs_queue_download/fs_cancel_download without a real
		// remote file, since the manager reports failure asynchronously
		// over the event channel rather than the HTTP response.

		body, _ := json.Marshal(QueueDownloadRequest{ID: "it1", URL: "http://127.0.0.1:1/nope", FileName: "f.bin"})
		resp, err := http.Post(baseURL+"/api/fs/queue", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("queue request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", resp.StatusCode)
		}

		cancelBody, _ := json.Marshal(CancelDownloadRequest{ID: "it1"})
		cancelResp, err := http.Post(baseURL+"/api/fs/cancel", "application/json", bytes.NewReader(cancelBody))
		if err != nil {
			t.Fatalf("cancel request failed: %v", err)
		}
		defer cancelResp.Body.Close()
		if cancelResp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", cancelResp.StatusCode)
		}
	})
}

func TestIntegration_MetricsEndpoint(t *testing.T) {
	port := getFreePort()
	cfg := Config{Addr: "127.0.0.1", Port: port, DownloadDir: t.TempDir(), MaxActive: 1}

	srv := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.ListenAndServe(ctx)
	time.Sleep(200 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
