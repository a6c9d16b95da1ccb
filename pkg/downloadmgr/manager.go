// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloadmgr

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vkomic/vkomic-core/internal/metrics"
)

// Manager runs up to maxActive downloads at a time, queuing the rest.
// Three maps hold the manager's state: the pending queue, the set of
// active task ids, and each active task's cancel function. They are
// always locked in that order — queue, then active, then cancel — to
// keep Enqueue/Cancel/ClearQueue/schedule free of deadlocks.
type Manager struct {
	baseCtx   context.Context
	maxActive int
	httpc     *http.Client

	queueMu sync.Mutex
	queue   []Task

	activeMu sync.Mutex
	active   map[string]struct{}

	cancelMu      sync.Mutex
	cancelSignals map[string]context.CancelFunc
	// suppressed marks ids ClearQueue has already emitted a synthesized
	// aborted result for, so run's own terminal result for the same id
	// (observed once its context cancellation unwinds) is dropped instead
	// of reported a second time.
	suppressed map[string]struct{}

	onProgress func(ProgressEvent)
	onResult   func(ResultEvent)
}

// New builds a Manager with the given concurrency cap and callbacks.
// Either callback may be nil. ctx is the manager's lifetime: cancelling
// it tears down every active download and stops scheduling new ones.
func New(ctx context.Context, maxActive int, httpc *http.Client, onProgress func(ProgressEvent), onResult func(ResultEvent)) *Manager {
	if maxActive < 1 {
		maxActive = 1
	}
	return &Manager{
		baseCtx:       ctx,
		maxActive:     maxActive,
		httpc:         httpc,
		active:        make(map[string]struct{}),
		cancelSignals: make(map[string]context.CancelFunc),
		suppressed:    make(map[string]struct{}),
		onProgress:    onProgress,
		onResult:      onResult,
	}
}

// Enqueue adds a task to the back of the queue and tries to schedule it
// immediately if capacity allows.
func (m *Manager) Enqueue(task Task) {
	m.queueMu.Lock()
	m.queue = append(m.queue, task)
	n := len(m.queue)
	m.queueMu.Unlock()
	metrics.DownloadsQueued.Set(float64(n))
	slog.Debug("queued download", "id", task.ID, "url", task.URL)
	m.schedule()
}

// Cancel aborts a task, whether queued or active, and reports whether the
// id was known at all. An active task's context is cancelled, which
// tears down its in-flight request; a queued task is simply removed
// before it ever starts.
//
// A cancelled queued task produces no ResultEvent: it never started, so
// there is nothing to report beyond removing it. Callers that need a
// terminal event for every cleared id should synthesize one from the
// caller-visible queue contents before calling Cancel, since the manager
// itself only speaks for tasks it has run.
func (m *Manager) Cancel(id string) bool {
	m.queueMu.Lock()
	found := false
	for i, t := range m.queue {
		if t.ID == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			found = true
			break
		}
	}
	n := len(m.queue)
	m.queueMu.Unlock()
	if found {
		metrics.DownloadsQueued.Set(float64(n))
	}

	m.activeMu.Lock()
	_, isActive := m.active[id]
	m.activeMu.Unlock()
	if !isActive {
		return found
	}

	m.cancelMu.Lock()
	cancel := m.cancelSignals[id]
	m.cancelMu.Unlock()
	if cancel != nil {
		slog.Debug("cancelling active download", "id", id)
		cancel()
	}
	return true
}

// ClearQueue cancels every download the manager knows about, queued or
// active, and returns the total number cancelled. Queued tasks are
// simply dropped; active tasks are cancelled the same way Cancel cancels
// one, and each gets a synthesized {ok:false, error:"aborted"} result
// here rather than waiting for its own runTask goroutine to unwind.
func (m *Manager) ClearQueue() int {
	m.queueMu.Lock()
	queued := len(m.queue)
	m.queue = nil
	m.queueMu.Unlock()
	metrics.DownloadsQueued.Set(0)

	m.activeMu.Lock()
	m.cancelMu.Lock()
	cancels := make(map[string]context.CancelFunc, len(m.cancelSignals))
	for id, cancel := range m.cancelSignals {
		cancels[id] = cancel
		delete(m.active, id)
		delete(m.cancelSignals, id)
		m.suppressed[id] = struct{}{}
	}
	m.cancelMu.Unlock()
	m.activeMu.Unlock()
	metrics.DownloadsActive.Set(0)

	for id, cancel := range cancels {
		slog.Debug("cancelling active download", "id", id)
		cancel()
		if m.onResult != nil {
			m.onResult(ResultEvent{ID: id, Ok: false, Error: "aborted"})
		}
	}

	return queued + len(cancels)
}

// schedule starts as many queued tasks as current capacity allows. It is
// re-invoked (not recursed into) each time a task finishes, so no
// goroutine ever holds a manager lock while spawning another.
func (m *Manager) schedule() {
	for {
		if m.baseCtx.Err() != nil {
			return
		}
		m.queueMu.Lock()
		if len(m.queue) == 0 {
			m.queueMu.Unlock()
			return
		}

		m.activeMu.Lock()
		if len(m.active) >= m.maxActive {
			m.activeMu.Unlock()
			m.queueMu.Unlock()
			return
		}

		task := m.queue[0]
		m.queue = m.queue[1:]
		m.active[task.ID] = struct{}{}
		queued := len(m.queue)
		active := len(m.active)
		m.activeMu.Unlock()
		m.queueMu.Unlock()
		metrics.DownloadsQueued.Set(float64(queued))
		metrics.DownloadsActive.Set(float64(active))

		taskCtx, cancel := context.WithCancel(m.baseCtx)
		m.cancelMu.Lock()
		m.cancelSignals[task.ID] = cancel
		m.cancelMu.Unlock()

		go m.run(taskCtx, cancel, task)
	}
}

func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, task Task) {
	defer cancel()
	start := time.Now()
	result := m.runTask(ctx, task, m.emitProgress)
	metrics.DownloadDuration.Observe(time.Since(start).Seconds())

	m.activeMu.Lock()
	delete(m.active, task.ID)
	remaining := len(m.active)
	m.activeMu.Unlock()
	metrics.DownloadsActive.Set(float64(remaining))

	m.cancelMu.Lock()
	delete(m.cancelSignals, task.ID)
	_, wasSuppressed := m.suppressed[task.ID]
	delete(m.suppressed, task.ID)
	m.cancelMu.Unlock()

	if wasSuppressed {
		// ClearQueue already emitted this task's terminal result.
		go m.schedule()
		return
	}

	if !result.Ok {
		slog.Warn("download failed", "id", task.ID, "error", result.Error)
	} else {
		slog.Debug("download finished", "id", task.ID, "path", result.Path)
	}

	if m.onResult != nil {
		m.onResult(result)
	}

	go m.schedule()
}

func (m *Manager) emitProgress(ev ProgressEvent) {
	if m.onProgress != nil {
		m.onProgress(ev)
	}
}
