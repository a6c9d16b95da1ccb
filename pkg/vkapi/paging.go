// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vkapi

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vkomic/vkomic-core/internal/metrics"
	"github.com/vkomic/vkomic-core/pkg/catalogue"
)

const (
	pageSize       = 100
	chunkSize      = 10
	chunkPermits   = 3
	chunkRetries   = 3
	chunkRetryWait = 500 * time.Millisecond

	// sequentialPagePause mirrors the original desktop client's politeness
	// delay between unbatched page reads.
	sequentialPagePause = 350 * time.Millisecond
)

// FetchAllComments reads every comment of a topic, returning them in
// original offset order along with the server-reported total.
//
// The first page is always fetched directly. If the topic has no more
// than 100 comments that page is the whole answer. Otherwise the
// remaining offsets are grouped into chunks of 10 and each chunk is
// issued as one execute mini-script call (10 sequential board reads
// billed as one request), with up to 3 chunks in flight at a time.
func (c *Client) FetchAllComments(ctx context.Context, groupID, topicID string) ([]catalogue.Comment, int, error) {
	firstPage, err := c.getCommentsPage(ctx, groupID, topicID, 0, pageSize)
	if err != nil {
		return nil, 0, err
	}
	total := firstPage.Count
	first := convertPage(firstPage)
	if total <= pageSize {
		return first, total, nil
	}

	var offsets []int
	for o := pageSize; o < total; o += pageSize {
		offsets = append(offsets, o)
	}
	chunks := chunkOffsets(offsets, chunkSize)

	pagesByChunk := make([][]rawCommentPage, len(chunks))
	sem := semaphore.NewWeighted(chunkPermits)
	g, gctx := errgroup.WithContext(ctx)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, 0, wrapNetwork("execute", err)
		}
		g.Go(func() error {
			defer sem.Release(1)
			pages, err := c.executeChunkWithRetry(gctx, groupID, topicID, chunk)
			if err != nil {
				return err
			}
			pagesByChunk[i] = pages
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	comments := first
	for _, pages := range pagesByChunk {
		for _, page := range pages {
			comments = append(comments, convertPage(&page)...)
		}
	}
	return comments, total, nil
}

// FetchHead reads only the first page of a topic's comments along with
// the server-reported total, letting a caller decide whether a full read
// is worth the extra requests. This is the crawler's phase-one primitive
// (§4.3): level 2 and 3 nodes are only ever head-fetched unless their
// count exceeds a single page.
func (c *Client) FetchHead(ctx context.Context, groupID, topicID string) ([]catalogue.Comment, int, error) {
	page, err := c.getCommentsPage(ctx, groupID, topicID, 0, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return convertPage(page), page.Count, nil
}

// FetchSequential reads pages one at a time with a politeness pause
// between requests, with no batching and no concurrency. It is the
// original desktop client's whole protocol, kept as a safe, if slow,
// fallback; nothing in this module calls it (the crawler's head fetch
// uses FetchHead).
func (c *Client) FetchSequential(ctx context.Context, groupID, topicID string) ([]catalogue.Comment, int, error) {
	page, err := c.getCommentsPage(ctx, groupID, topicID, 0, pageSize)
	if err != nil {
		return nil, 0, err
	}
	total := page.Count
	comments := convertPage(page)

	for offset := pageSize; offset < total; offset += pageSize {
		if err := sleepCtx(ctx, sequentialPagePause); err != nil {
			return nil, 0, wrapNetwork("board.getComments", err)
		}
		page, err = c.getCommentsPage(ctx, groupID, topicID, offset, pageSize)
		if err != nil {
			return nil, 0, err
		}
		comments = append(comments, convertPage(page)...)
	}
	return comments, total, nil
}

// executeChunkWithRetry retries a chunk call up to chunkRetries times on
// transient network/decode failure, at a fixed delay. Server errors and
// cancellation are not retried.
func (c *Client) executeChunkWithRetry(ctx context.Context, groupID, topicID string, offsets []int) ([]rawCommentPage, error) {
	var lastErr error
	for attempt := 0; attempt < chunkRetries; attempt++ {
		if attempt > 0 {
			metrics.APIRetriesTotal.Inc()
			if err := sleepCtx(ctx, chunkRetryWait); err != nil {
				return nil, wrapNetwork("execute", err)
			}
		}
		pages, err := c.executeChunk(ctx, groupID, topicID, offsets, pageSize)
		if err == nil {
			return pages, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func chunkOffsets(offsets []int, size int) [][]int {
	var chunks [][]int
	for i := 0; i < len(offsets); i += size {
		end := i + size
		if end > len(offsets) {
			end = len(offsets)
		}
		chunks = append(chunks, offsets[i:end])
	}
	return chunks
}

func convertPage(page *rawCommentPage) []catalogue.Comment {
	comments := make([]catalogue.Comment, 0, len(page.Items))
	for _, item := range page.Items {
		comments = append(comments, convertComment(item))
	}
	return comments
}

func convertComment(raw rawComment) catalogue.Comment {
	c := catalogue.Comment{Text: raw.Text}
	for _, a := range raw.Attachments {
		if a.Type != "doc" || a.Doc == nil {
			continue
		}
		c.Attachments = append(c.Attachments, catalogue.Attachment{
			Type: a.Type,
			Doc: catalogue.Document{
				ID:        a.Doc.ID,
				OwnerID:   a.Doc.OwnerID,
				Title:     a.Doc.Title,
				Ext:       a.Doc.Ext,
				Size:      a.Doc.Size,
				URL:       a.Doc.URL,
				AccessKey: a.Doc.AccessKey,
			},
		})
	}
	return c
}
