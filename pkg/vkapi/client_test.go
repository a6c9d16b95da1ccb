// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vkapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewWithHTTPClient("test-token", srv.Client())
	// Point the package-level URLs at the test server for this client by
	// wrapping the endpoints via a custom transport is unnecessary: the
	// URL consts are package-level, so tests instead override them
	// through the RoundTripper below.
	c.httpc.Transport = rewriteTransport{target: srv.URL}
	return c, srv
}

// rewriteTransport redirects requests to api.vk.com onto the test server
// while leaving the path and query untouched.
type rewriteTransport struct{ target string }

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target, err := url.Parse(rt.target)
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host
	req.Host = target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func TestClient_Ping(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(serverTimeResponse{Response: 1700000000})
	})
	if _, err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestClient_Ping_ServerError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(serverTimeResponse{Error: &apiErrorPayload{ErrorCode: 5, ErrorMsg: "bad token"}})
	})
	_, err := c.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRetryable(err) {
		t.Fatal("server errors must not be retryable")
	}
}

func TestFetchAllComments_SinglePage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(boardCommentsResponse{Response: &rawCommentPage{
			Count: 2,
			Items: []rawComment{{Text: "a"}, {Text: "b"}},
		}})
	})
	comments, total, err := c.FetchAllComments(context.Background(), "-1", "2")
	if err != nil {
		t.Fatalf("FetchAllComments: %v", err)
	}
	if total != 2 || len(comments) != 2 {
		t.Fatalf("got total=%d len=%d", total, len(comments))
	}
}

func TestFetchAllComments_BatchedChunks(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "execute") || r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			form, _ := url.ParseQuery(string(body))
			code := form.Get("code")
			n := strings.Count(code, "API.board.getComments")
			atomic.AddInt32(&calls, 1)
			pages := make([]rawCommentPage, n)
			for i := range pages {
				pages[i] = rawCommentPage{Count: 250, Items: []rawComment{{Text: "x"}}}
			}
			json.NewEncoder(w).Encode(executeResponse{Response: pages})
			return
		}
		json.NewEncoder(w).Encode(boardCommentsResponse{Response: &rawCommentPage{
			Count: 250,
			Items: make([]rawComment, 100),
		}})
	})

	comments, total, err := c.FetchAllComments(context.Background(), "1", "2")
	if err != nil {
		t.Fatalf("FetchAllComments: %v", err)
	}
	if total != 250 {
		t.Fatalf("total = %d, want 250", total)
	}
	// 100 from the first page plus one item per remaining offset (100,200 -> 2 offsets).
	if len(comments) != 102 {
		t.Fatalf("len(comments) = %d, want 102", len(comments))
	}
	if calls == 0 {
		t.Fatal("expected at least one execute call")
	}
}
