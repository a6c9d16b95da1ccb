// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloadmgr

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func slowServer(t *testing.T, body string, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestManager_BoundedConcurrency(t *testing.T) {
	var inflight, maxInflight int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			old := atomic.LoadInt32(&maxInflight)
			if n <= old || atomic.CompareAndSwapInt32(&maxInflight, old, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	var wg sync.WaitGroup
	var done int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New(ctx, 3, srv.Client(), nil, func(ResultEvent) {
		atomic.AddInt32(&done, 1)
		wg.Done()
	})

	const n = 6
	wg.Add(n)
	for i := 0; i < n; i++ {
		m.Enqueue(Task{ID: fmt.Sprintf("t%d", i), URL: srv.URL, Directory: dir, FileName: fmt.Sprintf("f%d.bin", i)})
	}
	wg.Wait()

	if maxInflight > 3 {
		t.Fatalf("observed %d concurrent downloads, want <= 3", maxInflight)
	}
	if done != n {
		t.Fatalf("got %d completions, want %d", done, n)
	}
}

func TestManager_RangeResume(t *testing.T) {
	full := "0123456789ABCDEF"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if rng == "" {
			w.Write([]byte(full))
			return
		}
		var start int
		fmt.Sscanf(rng, "bytes=%d-", &start)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(full)-1, len(full)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(full[start:]))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "resume.bin")
	if err := os.WriteFile(path, []byte(full[:8]), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	m := New(ctx, 1, srv.Client(), nil, nil)
	result := m.runTask(ctx, Task{ID: "r1", URL: srv.URL, Directory: dir, FileName: "resume.bin"}, func(ProgressEvent) {})

	if !result.Ok {
		t.Fatalf("expected success, got %+v", result)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != full {
		t.Fatalf("got %q, want %q", got, full)
	}
}

func TestManager_CancelActive(t *testing.T) {
	srv := slowServer(t, strings.Repeat("x", 1<<20), 200*time.Millisecond)
	dir := t.TempDir()

	resultCh := make(chan ResultEvent, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := New(ctx, 1, srv.Client(), nil, func(r ResultEvent) { resultCh <- r })

	m.Enqueue(Task{ID: "c1", URL: srv.URL, Directory: dir, FileName: "c1.bin"})
	time.Sleep(20 * time.Millisecond)
	m.Cancel("c1")

	select {
	case r := <-resultCh:
		if r.Ok {
			t.Fatalf("expected cancelled task to fail, got %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancellation result")
	}
}

func TestManager_ClearQueueDropsUnstarted(t *testing.T) {
	srv := slowServer(t, "x", 200*time.Millisecond)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := New(ctx, 1, srv.Client(), nil, nil)

	m.Enqueue(Task{ID: "first", URL: srv.URL, Directory: dir, FileName: "first.bin"})
	m.Enqueue(Task{ID: "second", URL: srv.URL, Directory: dir, FileName: "second.bin"})
	m.ClearQueue()

	m.queueMu.Lock()
	n := len(m.queue)
	m.queueMu.Unlock()
	if n != 0 {
		t.Fatalf("expected queue to be empty, got %d", n)
	}
}

func TestManager_CancelReportsWhetherKnown(t *testing.T) {
	srv := slowServer(t, "x", 200*time.Millisecond)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := New(ctx, 1, srv.Client(), nil, func(ResultEvent) {})

	m.Enqueue(Task{ID: "a1", URL: srv.URL, Directory: dir, FileName: "a1.bin"}) // goes active (maxActive=1)
	m.Enqueue(Task{ID: "a2", URL: srv.URL, Directory: dir, FileName: "a2.bin"}) // stays queued
	time.Sleep(20 * time.Millisecond)

	if !m.Cancel("a2") {
		t.Error("expected Cancel to report true for a queued id")
	}
	if !m.Cancel("a1") {
		t.Error("expected Cancel to report true for an active id")
	}
	if m.Cancel("nope") {
		t.Error("expected Cancel to report false for an unknown id")
	}
}

// TestManager_ClearQueueCancelsActiveAndReturnsTotal mirrors the spec's
// clear-during-run scenario: 5 tasks, 3 active and 2 queued, clearQueue
// returns 5 and emits an aborted result for each of the 3 active tasks.
func TestManager_ClearQueueCancelsActiveAndReturnsTotal(t *testing.T) {
	srv := slowServer(t, "x", 500*time.Millisecond)
	dir := t.TempDir()

	var mu sync.Mutex
	var results []ResultEvent
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := New(ctx, 3, srv.Client(), nil, func(r ResultEvent) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		m.Enqueue(Task{ID: fmt.Sprintf("t%d", i), URL: srv.URL, Directory: dir, FileName: fmt.Sprintf("t%d.bin", i)})
	}
	time.Sleep(20 * time.Millisecond) // let the first 3 become active

	n := m.ClearQueue()
	if n != 5 {
		t.Fatalf("expected ClearQueue to report 5, got %d", n)
	}

	mu.Lock()
	got := len(results)
	mu.Unlock()
	if got != 3 {
		t.Fatalf("expected 3 aborted results for the active tasks, got %d", got)
	}
}

func TestSanitizeFileName(t *testing.T) {
	got := sanitizeFileName(`a:b/c\d|e?f*g"h<i>j`)
	if strings.ContainsAny(got, `:/\|?*"<>`) {
		t.Fatalf("unsanitized characters remain: %q", got)
	}
}
