// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package vkapi talks to the board-comment discussion API: paged comment
// reads, the server-side mini-script ("execute") batching facility, and a
// ping used for connectivity checks. It performs network I/O only; text
// parsing lives in package catalogue.
package vkapi

import (
	"net/http"
	"strings"
	"time"
)

const (
	apiVersion = "5.131"
	userAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	pingURL    = "https://api.vk.com/method/utils.getServerTime"
	commentsURL = "https://api.vk.com/method/board.getComments"
	executeURL  = "https://api.vk.com/method/execute"
)

// Client issues requests against the board-comment API.
type Client struct {
	httpc *http.Client
	token string
}

// New builds a Client with sensible transport defaults, mirroring the
// desktop client's connection pooling.
func New(token string) *Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		httpc: &http.Client{Transport: tr},
		token: token,
	}
}

// NewWithHTTPClient builds a Client around a caller-supplied *http.Client,
// used by tests to point at an httptest.Server.
func NewWithHTTPClient(token string, httpc *http.Client) *Client {
	return &Client{httpc: httpc, token: token}
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
}

// normalizeGroupID strips the conventional leading "-" some callers use
// for community/owner ids; the board API itself wants the unsigned form.
func normalizeGroupID(groupID string) string {
	return strings.TrimPrefix(groupID, "-")
}
