// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloadmgr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vkomic/vkomic-core/internal/metrics"
)

var filenameReplacer = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_",
	"/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

func sanitizeFileName(name string) string {
	cleaned := filenameReplacer.Replace(name)
	if cleaned == "" {
		return "download"
	}
	return cleaned
}

// runTask downloads a single task to disk with HTTP range-based resume,
// reporting progress and returning the final ResultEvent. The manager
// cancels ctx to request abort; cancellation is polled at chunk
// boundaries and also tears down the in-flight request and response body
// read, so runTask always finishes in bounded time.
func (m *Manager) runTask(ctx context.Context, task Task, onProgress func(ProgressEvent)) ResultEvent {
	dir := task.Directory
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ResultEvent{ID: task.ID, Ok: false, Error: wrapFS(task.ID, "mkdir", err).Error()}
	}

	name := sanitizeFileName(task.FileName)
	path := filepath.Join(dir, name)

	var startByte int64
	if info, err := os.Stat(path); err == nil {
		startByte = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return ResultEvent{ID: task.ID, Ok: false, Error: wrapNet(task.ID, err).Error()}
	}
	if startByte > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(startByte, 10)+"-")
	}

	resp, err := m.httpc.Do(req)
	if err != nil {
		return ResultEvent{ID: task.ID, Ok: false, Error: wrapNet(task.ID, err).Error()}
	}
	defer resp.Body.Close()

	select {
	case <-ctx.Done():
		return ResultEvent{ID: task.ID, Ok: false, Error: "aborted"}
	default:
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ResultEvent{ID: task.ID, Ok: false, Error: wrapNet(task.ID, fmt.Errorf("unexpected status %d", resp.StatusCode)).Error()}
	}

	resumed := resp.StatusCode == http.StatusPartialContent
	flags := os.O_CREATE | os.O_WRONLY
	if resumed {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
		startByte = 0
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return ResultEvent{ID: task.ID, Ok: false, Error: wrapFS(task.ID, "open", err).Error()}
	}
	defer f.Close()

	total := resp.ContentLength
	if total >= 0 {
		total += startByte
	}

	received := startByte
	lastEmit := time.Now()
	lastBytes := received
	buf := make([]byte, 32*1024)

	for {
		select {
		case <-ctx.Done():
			return ResultEvent{ID: task.ID, Ok: false, Error: "aborted"}
		default:
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return ResultEvent{ID: task.ID, Ok: false, Error: wrapFS(task.ID, "write", werr).Error()}
			}
			received += int64(n)
			metrics.BytesDownloadedTotal.Add(float64(n))

			if now := time.Now(); now.Sub(lastEmit) >= progressThrottle {
				elapsed := now.Sub(lastEmit).Seconds()
				speed := float64(received-lastBytes) / elapsed
				onProgress(progressEventFor(task.ID, received, total, speed))
				lastEmit = now
				lastBytes = received
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return ResultEvent{ID: task.ID, Ok: false, Error: wrapNet(task.ID, rerr).Error()}
		}
	}

	onProgress(progressEventFor(task.ID, received, total, 0))
	return ResultEvent{ID: task.ID, Ok: true, Path: path}
}

func progressEventFor(id string, received, total int64, speed float64) ProgressEvent {
	progress := 0.0
	var totalPtr *int64
	if total >= 0 {
		totalPtr = &total
		if total > 0 {
			progress = float64(received) / float64(total) * 100
		}
	}
	return ProgressEvent{
		ID:            id,
		Progress:      progress,
		ReceivedBytes: received,
		TotalBytes:    totalPtr,
		SpeedBytes:    speed,
	}
}

func wrapNet(id string, err error) *Error { return &Error{Kind: KindNetwork, ID: id, Err: err} }
func wrapFS(id, op string, err error) *Error {
	return &Error{Kind: KindFilesystem, ID: id, Err: fmt.Errorf("%s: %w", op, err)}
}
