// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package downloadmgr runs a bounded-concurrency download queue with
// HTTP range-based resume and cooperative cancellation, and reports
// progress and terminal results through caller-supplied callbacks.
package downloadmgr

import "time"

// Task describes one file to fetch.
type Task struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Directory string `json:"directory"`
	FileName  string `json:"fileName"`
}

// ProgressEvent is emitted while a task is downloading, throttled to at
// most one per 100ms per task, plus one unthrottled final event when the
// body has been fully read.
type ProgressEvent struct {
	ID            string  `json:"id"`
	Progress      float64 `json:"progress"` // percent, 0..100; 0 when total is unknown
	ReceivedBytes int64   `json:"receivedBytes"`
	TotalBytes    *int64  `json:"totalBytes"` // null when the server didn't report Content-Length
	SpeedBytes    float64 `json:"speedBytes"`
}

// ResultEvent is emitted exactly once per task that reaches a terminal
// state: completed, failed, or aborted.
type ResultEvent struct {
	ID    string `json:"id"`
	Ok    bool   `json:"ok"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// Kind classifies a downloadmgr error.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindFilesystem Kind = "filesystem"
	KindCancelled  Kind = "cancelled"
	KindInvalid    Kind = "invalid-arguments"
)

// Error wraps an underlying cause with the Kind callers need to decide
// how to report it.
type Error struct {
	Kind Kind
	ID   string
	Err  error
}

func (e *Error) Error() string {
	return string(e.Kind) + " downloading " + e.ID + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

const (
	progressThrottle = 100 * time.Millisecond
)
