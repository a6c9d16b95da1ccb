// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vkapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vkomic/vkomic-core/internal/metrics"
)

// getCommentsPage issues a single direct board.getComments call. Used for
// the first page of every topic, where the caller still needs the total
// count before deciding whether batching is needed at all.
func (c *Client) getCommentsPage(ctx context.Context, groupID, topicID string, offset, count int) (page *rawCommentPage, err error) {
	metrics.APIRequestsTotal.WithLabelValues("board.getComments").Inc()
	defer func() {
		if err != nil {
			metrics.APIRequestErrorsTotal.WithLabelValues("board.getComments", errorKind(err)).Inc()
		}
	}()

	q := url.Values{}
	q.Set("v", apiVersion)
	q.Set("group_id", normalizeGroupID(groupID))
	q.Set("topic_id", topicID)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("count", strconv.Itoa(count))
	q.Set("extended", "0")
	if c.token != "" {
		q.Set("access_token", c.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, commentsURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, wrapNetwork("board.getComments", err)
	}
	c.addHeaders(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, wrapNetwork("board.getComments", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapNetwork("board.getComments", err)
	}

	var parsed boardCommentsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, wrapDecode("board.getComments", err)
	}
	if parsed.Error != nil {
		return nil, wrapServer("board.getComments", &ServerError{Code: parsed.Error.ErrorCode, Message: parsed.Error.ErrorMsg})
	}
	if parsed.Response == nil {
		return nil, wrapDecode("board.getComments", fmt.Errorf("empty response"))
	}
	return parsed.Response, nil
}

// executeChunk batches a set of offsets into a single mini-script call:
// one sequential API.board.getComments invocation per offset, returned as
// a tuple, so a page of ten offsets costs one request against the billing
// quota instead of ten.
func (c *Client) executeChunk(ctx context.Context, groupID, topicID string, offsets []int, pageSize int) (pages []rawCommentPage, err error) {
	metrics.APIRequestsTotal.WithLabelValues("execute").Inc()
	defer func() {
		if err != nil {
			metrics.APIRequestErrorsTotal.WithLabelValues("execute", errorKind(err)).Inc()
		}
	}()

	gid := normalizeGroupID(groupID)

	var calls strings.Builder
	for i, offset := range offsets {
		if i > 0 {
			calls.WriteByte(',')
		}
		fmt.Fprintf(&calls, `API.board.getComments({"group_id":%s,"topic_id":%s,"offset":%d,"count":%d,"extended":0})`,
			gid, topicID, offset, pageSize)
	}
	code := "return [" + calls.String() + "];"

	form := url.Values{}
	form.Set("v", apiVersion)
	form.Set("code", code)
	if c.token != "" {
		form.Set("access_token", c.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, executeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, wrapNetwork("execute", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.addHeaders(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, wrapNetwork("execute", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapNetwork("execute", err)
	}

	var parsed executeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, wrapDecode("execute", err)
	}
	if parsed.Error != nil {
		return nil, wrapServer("execute", &ServerError{Code: parsed.Error.ErrorCode, Message: parsed.Error.ErrorMsg})
	}
	if len(parsed.Response) != len(offsets) {
		return nil, wrapDecode("execute", fmt.Errorf("expected %d sub-results, got %d", len(offsets), len(parsed.Response)))
	}
	return parsed.Response, nil
}
