// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vkomic/vkomic-core/internal/server"
)

func newServeCmd(ctx context.Context, ro *RootOpts) *cobra.Command {
	cfg := server.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/WebSocket command and event transport",
		Long: `Start the command/event surface the desktop shell talks to:
  - REST endpoints for crawling the catalogue and queuing downloads
  - A WebSocket stream carrying download-progress/download-result events
  - A /metrics endpoint for Prometheus scraping

Example:
  vkomic-core serve
  vkomic-core serve --port 3000 --download-dir ./downloads`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applyServeDefaults(cmd, ro, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Token = resolveToken(ro)
			srv := server.New(cfg)
			fmt.Printf("vkomic-core serve: listening on %s:%d (download dir %s)\n", cfg.Addr, cfg.Port, cfg.DownloadDir)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "Address to bind to")
	cmd.Flags().IntVarP(&cfg.Port, "port", "p", cfg.Port, "Port to listen on")
	cmd.Flags().StringVar(&cfg.DownloadDir, "download-dir", cfg.DownloadDir, "Default output directory for queued downloads")
	cmd.Flags().IntVar(&cfg.MaxActive, "max-active", cfg.MaxActive, "Max concurrent downloads")
	cmd.Flags().StringVar(&cfg.RootGroupID, "group-id", "", "VK group id hosting the root topic")
	cmd.Flags().StringVar(&cfg.RootTopicID, "topic-id", "", "Root discussion-board topic id")
	cmd.Flags().StringVar(&cfg.ComicsTopicID, "comics-topic-id", "", "Topic id that gets a fourth expansion level")

	return cmd
}

func applyServeDefaults(cmd *cobra.Command, ro *RootOpts, cfg *server.Config) error {
	fileCfg, err := loadConfigFile(ro)
	if err != nil {
		return err
	}
	if fileCfg == nil {
		return nil
	}

	setStr := func(flagName string, set func(string)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := fileCfg[flagName]; ok && v != nil {
			set(fmt.Sprint(v))
		}
	}
	setInt := func(flagName string, set func(int)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := fileCfg[flagName]; ok && v != nil {
			var x int
			fmt.Sscan(fmt.Sprint(v), &x)
			set(x)
		}
	}

	setStr("addr", func(v string) { cfg.Addr = v })
	setInt("port", func(v int) { cfg.Port = v })
	setStr("download-dir", func(v string) { cfg.DownloadDir = v })
	setInt("max-active", func(v int) { cfg.MaxActive = v })
	setStr("group-id", func(v string) { cfg.RootGroupID = v })
	setStr("topic-id", func(v string) { cfg.RootTopicID = v })
	setStr("comics-topic-id", func(v string) { cfg.ComicsTopicID = v })

	return nil
}
