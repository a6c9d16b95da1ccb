// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vkapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vkomic/vkomic-core/internal/metrics"
)

// Ping checks connectivity and reports the round-trip latency, mirroring
// the desktop client's startup health check.
func (c *Client) Ping(ctx context.Context) (d time.Duration, err error) {
	metrics.APIRequestsTotal.WithLabelValues("ping").Inc()
	defer func() {
		if err != nil {
			metrics.APIRequestErrorsTotal.WithLabelValues("ping", errorKind(err)).Inc()
		}
	}()

	start := time.Now()

	q := url.Values{}
	q.Set("v", apiVersion)
	if c.token != "" {
		q.Set("access_token", c.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pingURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, wrapNetwork("ping", err)
	}
	c.addHeaders(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, wrapNetwork("ping", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, wrapNetwork("ping", err)
	}

	var parsed serverTimeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, wrapDecode("ping", err)
	}
	if parsed.Error != nil {
		return 0, wrapServer("ping", &ServerError{Code: parsed.Error.ErrorCode, Message: parsed.Error.ErrorMsg})
	}

	return time.Since(start), nil
}
