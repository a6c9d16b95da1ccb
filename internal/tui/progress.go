// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package tui renders a live, adaptive terminal view of the download
// manager's in-flight queue, fed by the same ProgressEvent/ResultEvent
// stream the HTTP/WebSocket layer broadcasts to the desktop shell.
package tui

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/vkomic/vkomic-core/pkg/downloadmgr"
)

// LiveRenderer renders a cross-platform, adaptive, colorful progress table
// for the download manager's active and recently finished tasks.
// - Uses ANSI colours and screen redraw when available; otherwise prints
//   uncoloured lines without clearing the screen. The headline and the
//   column header are wrapped in ANSI bold in either mode.
// - Adapts to terminal width/height.
type LiveRenderer struct {
	mu         sync.Mutex
	start      time.Time
	events     chan any
	done       chan struct{}
	stopped    bool
	hideCur    bool
	supports   bool // ANSI + interactive
	noColor    bool
	lastRedraw time.Time

	totalQueued int

	tasks map[string]*taskState

	lastTotalBytes int64
	lastTick       time.Time
	smoothedSpeed  float64
}

type taskState struct {
	id     string
	total  int64
	bytes  int64
	status string // "queued","downloading","done","error"
	errMsg string

	lastBytes     int64
	lastTime      time.Time
	smoothedSpeed float64

	started time.Time
}

// EMA smoothing factor (0.1 = very smooth, 0.5 = responsive)
const speedSmoothingFactor = 0.3

func smoothSpeed(current, previous float64) float64 {
	if previous == 0 {
		return current
	}
	return speedSmoothingFactor*current + (1-speedSmoothingFactor)*previous
}

// NewLiveRenderer creates a new live TUI renderer for a download manager's
// event stream.
func NewLiveRenderer() *LiveRenderer {
	lr := &LiveRenderer{
		start:   time.Now(),
		events:  make(chan any, 2048),
		done:    make(chan struct{}),
		tasks:   map[string]*taskState{},
		noColor: os.Getenv("NO_COLOR") != "",
	}
	lr.supports = isInteractive() && ansiOkay()
	if lr.supports && !lr.noColor {
		fmt.Fprint(os.Stdout, "\x1b[?25l")
		lr.hideCur = true
	}
	go lr.loop()
	return lr
}

// Close stops the renderer and restores the terminal.
func (lr *LiveRenderer) Close() {
	lr.mu.Lock()
	if lr.stopped {
		lr.mu.Unlock()
		return
	}
	lr.stopped = true
	close(lr.done)
	lr.mu.Unlock()
	time.Sleep(60 * time.Millisecond)
	if lr.hideCur {
		fmt.Fprint(os.Stdout, "\x1b[?25h")
	}
	fmt.Fprintln(os.Stdout)
}

// OnQueued registers a task as queued before any progress arrives for it,
// so the table can show it immediately rather than waiting for the first
// byte.
func (lr *LiveRenderer) OnQueued(id string) {
	select {
	case lr.events <- queuedMsg{id: id}:
	default:
	}
}

// OnProgress feeds a download-progress event into the renderer.
func (lr *LiveRenderer) OnProgress(ev downloadmgr.ProgressEvent) {
	select {
	case lr.events <- ev:
	default:
		// Drop events if the UI is congested; we keep rendering smoothly.
	}
}

// OnResult feeds a download-result event into the renderer.
func (lr *LiveRenderer) OnResult(ev downloadmgr.ResultEvent) {
	select {
	case lr.events <- ev:
	default:
	}
}

type queuedMsg struct{ id string }

func (lr *LiveRenderer) loop() {
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-lr.done:
			lr.render(true)
			return
		case ev := <-lr.events:
			lr.apply(ev)
		case <-ticker.C:
			lr.render(false)
		}
	}
}

func (lr *LiveRenderer) apply(raw any) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	switch ev := raw.(type) {
	case queuedMsg:
		ts := lr.ensure(ev.id)
		ts.status = "queued"
		lr.totalQueued++
	case downloadmgr.ProgressEvent:
		ts := lr.ensure(ev.ID)
		ts.status = "downloading"
		if ts.started.IsZero() {
			ts.started = time.Now()
		}
		ts.bytes = ev.ReceivedBytes
		if ev.TotalBytes != nil && *ev.TotalBytes > 0 {
			ts.total = *ev.TotalBytes
		}
		if ts.lastTime.IsZero() {
			ts.lastTime = time.Now()
			ts.lastBytes = ts.bytes
		}
	case downloadmgr.ResultEvent:
		ts := lr.ensure(ev.ID)
		if ev.Ok {
			ts.status = "done"
			ts.bytes = ts.total
		} else {
			ts.status = "error"
			ts.errMsg = ev.Error
		}
	}
}

func (lr *LiveRenderer) ensure(id string) *taskState {
	if ts, ok := lr.tasks[id]; ok {
		return ts
	}
	ts := &taskState{id: id}
	lr.tasks[id] = ts
	return ts
}

func (lr *LiveRenderer) render(final bool) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	w, h := termSize()
	minW := 70
	if w < minW {
		w = minW
	}
	if h < 12 {
		h = 12
	}

	var aggBytes, aggTotal int64
	var active []*taskState
	var doneCnt, errCnt int
	for _, ts := range lr.tasks {
		if ts.status == "downloading" {
			active = append(active, ts)
		}
		if ts.status == "done" {
			doneCnt++
		}
		if ts.status == "error" {
			errCnt++
		}
		aggTotal += ts.total
		if ts.bytes > 0 {
			aggBytes += ts.bytes
		} else if ts.status == "done" {
			aggBytes += ts.total
		}
	}
	queued := lr.totalQueued - (len(active) + doneCnt + errCnt)
	if queued < 0 {
		queued = 0
	}

	now := time.Now()
	if !lr.lastTick.IsZero() && now.After(lr.lastTick) {
		deltaB := aggBytes - lr.lastTotalBytes
		deltaT := now.Sub(lr.lastTick).Seconds()
		if deltaT > 0.05 {
			instantSpeed := float64(deltaB) / deltaT
			if instantSpeed >= 0 {
				lr.smoothedSpeed = smoothSpeed(instantSpeed, lr.smoothedSpeed)
			}
			lr.lastTick = now
			lr.lastTotalBytes = aggBytes
		}
	} else if lr.lastTick.IsZero() {
		lr.lastTick = now
		lr.lastTotalBytes = aggBytes
	}
	speed := lr.smoothedSpeed

	var etaStr string
	if speed > 0 && aggTotal > 0 && aggBytes < aggTotal {
		rem := float64(aggTotal-aggBytes) / speed
		etaStr = fmtDuration(time.Duration(rem) * time.Second)
	} else {
		etaStr = "—"
	}

	if lr.supports {
		fmt.Fprint(os.Stdout, "\x1b[H\x1b[2J")
	}

	headline := fmt.Sprintf("Downloads  active=%d  queued=%d  done=%d  errors=%d", len(active), queued, doneCnt, errCnt)
	fmt.Fprintln(os.Stdout, colorize(bold(headline), "fg=cyan", lr))

	prog := float64(0)
	if aggTotal > 0 {
		prog = float64(aggBytes) / float64(aggTotal)
		if prog < 0 {
			prog = 0
		}
		if prog > 1 {
			prog = 1
		}
	}
	bar := renderBar(int(float64(w)*0.4), prog, lr)
	speedStr := humanBytes(int64(speed)) + "/s"
	fmt.Fprintf(os.Stdout, "%s  %s  %s/%s  %s  ETA %s\n",
		colorize(bar, "fg=green", lr),
		percent(prog),
		humanBytes(aggBytes), humanBytes(aggTotal),
		speedStr, etaStr,
	)

	fmt.Fprintln(os.Stdout)
	cols := []string{"Status", "Task", "Progress", "Speed", "ETA"}
	fmt.Fprintln(os.Stdout, headerRow(cols, w))

	maxRows := h - 8
	if maxRows < 3 {
		maxRows = 3
	}

	sort.Slice(active, func(i, j int) bool { return active[i].bytes > active[j].bytes })

	shown := 0
	for _, ts := range active {
		if shown >= maxRows {
			break
		}
		shown++
		fmt.Fprintln(os.Stdout, renderTaskRow(ts, w, lr))
	}

	if shown < maxRows {
		var rest []*taskState
		for _, ts := range lr.tasks {
			if ts.status == "done" || ts.status == "error" {
				rest = append(rest, ts)
			}
		}
		sort.Slice(rest, func(i, j int) bool { return rest[i].started.After(rest[j].started) })
		for _, ts := range rest {
			if shown >= maxRows {
				break
			}
			fmt.Fprintln(os.Stdout, renderTaskRow(ts, w, lr))
			shown++
		}
	}

	if lr.supports {
		fmt.Fprintln(os.Stdout, dim(fmt.Sprintf("Press Ctrl+C to cancel • %s %s",
			runtime.GOOS, runtime.GOARCH)))
	}
}

func renderTaskRow(ts *taskState, w int, lr *LiveRenderer) string {
	statusW := 9
	speedW := 10
	etaW := 9
	remain := w - (statusW + speedW + etaW + 8)
	if remain < 20 {
		remain = 20
	}
	idW := int(float64(remain) * 0.50)
	if idW < 18 {
		idW = 18
	}
	progressW := remain - idW

	var st, col string
	switch ts.status {
	case "downloading":
		st, col = "▶", "fg=yellow"
	case "done":
		st, col = "✓", "fg=green"
	case "error":
		st, col = "×", "fg=red"
	default:
		st, col = "…", "fg=magenta"
	}
	status := pad(colorize(st+" "+ts.status, col, lr), statusW)

	name := ellipsizeMiddle(ts.id, idW)

	var p float64
	if ts.total > 0 {
		p = float64(ts.bytes) / float64(ts.total)
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
	}
	bar := renderBar(progressW-18, p, lr)
	progTxt := fmt.Sprintf(" %s/%s %s", humanBytes(ts.bytes), humanBytes(ts.total), percent(p))
	progress := bar + progTxt
	if utf8.RuneCountInString(progress) > progressW {
		runes := []rune(progress)
		progress = string(runes[:progressW])
	}

	now := time.Now()
	if !ts.lastTime.IsZero() {
		dt := now.Sub(ts.lastTime).Seconds()
		if dt > 0.05 {
			delta := ts.bytes - ts.lastBytes
			instantSpeed := float64(delta) / dt
			if instantSpeed >= 0 {
				ts.smoothedSpeed = smoothSpeed(instantSpeed, ts.smoothedSpeed)
			}
			ts.lastTime = now
			ts.lastBytes = ts.bytes
		}
	} else {
		ts.lastTime = now
		ts.lastBytes = ts.bytes
	}
	speed := ts.smoothedSpeed
	speedTxt := pad(humanBytes(int64(speed))+"/s", speedW)

	eta := "—"
	if speed > 0 && ts.total > 0 && ts.bytes < ts.total {
		rem := float64(ts.total-ts.bytes) / speed
		eta = fmtDuration(time.Duration(rem) * time.Second)
	}
	etaTxt := pad(eta, etaW)

	return fmt.Sprintf("%s  %s  %s  %s  %s", status, pad(name, idW), progress, speedTxt, etaTxt)
}

func headerRow(cols []string, w int) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = bold(c)
	}
	s := strings.Join(parts, "  ")
	if utf8.RuneCountInString(s) > w {
		runes := []rune(s)
		return string(runes[:w])
	}
	return s
}

func ellipsizeMiddle(s string, w int) string {
	if w <= 3 || utf8.RuneCountInString(s) <= w {
		return pad(s, w)
	}
	runes := []rune(s)
	half := (w - 3) / 2
	if 2*half+3 > len(runes) {
		return pad(s, w)
	}
	return pad(string(runes[:half])+"..."+string(runes[len(runes)-half:]), w)
}

func pad(s string, w int) string {
	r := utf8.RuneCountInString(s)
	if r >= w {
		return s
	}
	return s + strings.Repeat(" ", w-r)
}

func renderBar(width int, p float64, lr *LiveRenderer) string {
	if width < 3 {
		width = 3
	}
	filled := int(p * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return bar
}

func percent(p float64) string {
	return fmt.Sprintf("%3.0f%%", p*100)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for n/div >= unit && exp < 6 {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func fmtDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func termSize() (int, int) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return 100, 30
	}
	return w, h
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func ansiOkay() bool {
	termEnv := strings.ToLower(os.Getenv("TERM"))
	if termEnv == "dumb" {
		return false
	}
	return true
}

func colorize(s, style string, lr *LiveRenderer) string {
	if lr.noColor || !lr.supports {
		return s
	}
	switch style {
	case "fg=green":
		return "\x1b[32m" + s + "\x1b[0m"
	case "fg=yellow":
		return "\x1b[33m" + s + "\x1b[0m"
	case "fg=red":
		return "\x1b[31m" + s + "\x1b[0m"
	case "fg=blue":
		return "\x1b[34m" + s + "\x1b[0m"
	case "fg=magenta":
		return "\x1b[35m" + s + "\x1b[0m"
	case "fg=cyan":
		return "\x1b[36m" + s + "\x1b[0m"
	default:
		return s
	}
}

func bold(s string) string { return "\x1b[1m" + s + "\x1b[0m" }
func dim(s string) string  { return "\x1b[2m" + s + "\x1b[0m" }
