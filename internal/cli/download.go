// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/vkomic/vkomic-core/internal/tui"
	"github.com/vkomic/vkomic-core/pkg/downloadmgr"
)

// newDownloadCmd drives the download manager directly from the CLI,
// without a running serve instance — useful for fetching a handful of
// files ad hoc, with the same live terminal view serve's WebSocket
// clients would otherwise render from the event stream.
func newDownloadCmd(ctx context.Context, ro *RootOpts) *cobra.Command {
	var (
		output    string
		maxActive int
	)

	cmd := &cobra.Command{
		Use:   "download URL...",
		Short: "Download one or more files with bounded concurrency and range resume",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var renderer *tui.LiveRenderer
			var onProgress func(downloadmgr.ProgressEvent)
			var onResult func(downloadmgr.ResultEvent)

			if !ro.Quiet && !ro.JSONOut {
				renderer = tui.NewLiveRenderer()
				defer renderer.Close()
				onProgress = renderer.OnProgress
				onResult = renderer.OnResult
			}

			done := make(chan struct{}, len(args))
			var resultsMu resultCollector

			mgr := downloadmgr.New(ctx, maxActive, http.DefaultClient,
				func(ev downloadmgr.ProgressEvent) {
					if onProgress != nil {
						onProgress(ev)
					}
				},
				func(ev downloadmgr.ResultEvent) {
					if onResult != nil {
						onResult(ev)
					}
					resultsMu.add(ev)
					done <- struct{}{}
				},
			)

			for i, u := range args {
				id := fmt.Sprintf("dl-%d", i+1)
				if renderer != nil {
					renderer.OnQueued(id)
				}
				mgr.Enqueue(downloadmgr.Task{
					ID:        id,
					URL:       u,
					Directory: output,
					FileName:  filepath.Base(u),
				})
			}

			for range args {
				select {
				case <-done:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			results := resultsMu.items

			var failed int
			for _, r := range results {
				if !r.Ok {
					failed++
					fmt.Printf("failed: %s: %s\n", r.ID, r.Error)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d downloads failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", ".", "Destination directory")
	cmd.Flags().IntVar(&maxActive, "max-active", 3, "Maximum concurrent downloads")

	return cmd
}

// resultCollector guards the result slice built up across concurrent
// onResult callbacks.
type resultCollector struct {
	mu    sync.Mutex
	items []downloadmgr.ResultEvent
}

func (c *resultCollector) add(ev downloadmgr.ResultEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, ev)
}
