// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package cli builds the vkomic-core command tree: crawl, download, serve,
// version, and config.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vkomic/vkomic-core/pkg/catalogue"
	"github.com/vkomic/vkomic-core/pkg/crawler"
	"github.com/vkomic/vkomic-core/pkg/vkapi"
)

// RootOpts holds global CLI options.
type RootOpts struct {
	Token    string
	JSONOut  bool
	Quiet    bool
	Verbose  bool
	Config   string
	LogLevel string
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ro := &RootOpts{}
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := &cobra.Command{
		Use:           "vkomic-core",
		Short:         "Catalogue crawler and download backend for the vkomic desktop client",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configureLogging(ro)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&ro.Token, "token", "t", "", "VK access token (also reads VK_TOKEN env)")
	root.PersistentFlags().BoolVar(&ro.JSONOut, "json", false, "Emit machine-readable JSON")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Quiet mode (minimal logs)")
	root.PersistentFlags().BoolVarP(&ro.Verbose, "verbose", "v", false, "Verbose logs (debug details)")
	root.PersistentFlags().StringVar(&ro.Config, "config", "", "Path to config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	root.AddCommand(newCrawlCmd(ctx, ro))
	root.AddCommand(newDownloadCmd(ctx, ro))
	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newServeCmd(ctx, ro))
	root.AddCommand(newConfigCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func configureLogging(ro *RootOpts) {
	level := slog.LevelInfo
	switch strings.ToLower(ro.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if ro.Verbose {
		level = slog.LevelDebug
	}
	if ro.Quiet {
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// crawlSettings mirrors the subset of server.Config the crawl command
// needs, resolved the same way serve's Config is: flags, then VK_TOKEN,
// then an optional config file.
type crawlSettings struct {
	RootGroupID   string
	RootTopicID   string
	ComicsTopicID string
	Full          bool
}

func newCrawlCmd(ctx context.Context, ro *RootOpts) *cobra.Command {
	cs := &crawlSettings{}
	var nodeTopicID, nodeGroupID string

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the VK discussion-board catalogue and print the resulting tree",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applyCrawlDefaults(cmd, ro, cs)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			token := resolveToken(ro)
			api := vkapi.New(token)
			cr := crawler.New(api, crawler.Config{
				RootGroupID:   cs.RootGroupID,
				RootTopicID:   cs.RootTopicID,
				ComicsTopicID: cs.ComicsTopicID,
			})

			groupID, topicID := cs.RootGroupID, cs.RootTopicID
			if nodeTopicID != "" {
				groupID, topicID = nodeGroupID, nodeTopicID
			}

			var (
				node *catalogue.Node
				err  error
			)
			switch {
			case nodeTopicID != "":
				node, err = cr.FetchNodeContent(ctx, groupID, topicID)
			case cs.Full:
				node, err = cr.FetchFullIndex(ctx)
			default:
				node, err = cr.FetchRootIndex(ctx)
			}
			if err != nil {
				return err
			}

			if ro.JSONOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(node)
			}
			printTree(node, 0)
			return nil
		},
	}

	cmd.Flags().StringVar(&cs.RootGroupID, "group-id", "", "VK group id hosting the root topic")
	cmd.Flags().StringVar(&cs.RootTopicID, "topic-id", "", "Root discussion-board topic id")
	cmd.Flags().StringVar(&cs.ComicsTopicID, "comics-topic-id", "", "Topic id that gets a fourth expansion level")
	cmd.Flags().BoolVar(&cs.Full, "full", false, "Crawl the whole tree instead of just the root index")
	cmd.Flags().StringVar(&nodeGroupID, "node-group-id", "", "Fetch a single node instead of the tree (requires --node-topic-id)")
	cmd.Flags().StringVar(&nodeTopicID, "node-topic-id", "", "Fetch a single node instead of the tree")

	return cmd
}

func printTree(n *catalogue.Node, depth int) {
	if n == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	count := ""
	if n.Count != nil {
		count = fmt.Sprintf(" (%d)", *n.Count)
	}
	fmt.Printf("%s- [%s] %s%s\n", indent, n.Kind, n.Title, count)
	for _, child := range n.Children {
		printTree(child, depth+1)
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func resolveToken(ro *RootOpts) string {
	tok := strings.TrimSpace(ro.Token)
	if tok == "" {
		tok = strings.TrimSpace(os.Getenv("VK_TOKEN"))
	}
	return tok
}

func applyCrawlDefaults(cmd *cobra.Command, ro *RootOpts, cs *crawlSettings) error {
	cfg, err := loadConfigFile(ro)
	if err != nil {
		return err
	}
	if cfg == nil {
		return nil
	}

	setStr := func(flagName string, set func(string)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			set(fmt.Sprint(v))
		}
	}
	setStr("group-id", func(v string) { cs.RootGroupID = v })
	setStr("topic-id", func(v string) { cs.RootTopicID = v })
	setStr("comics-topic-id", func(v string) { cs.ComicsTopicID = v })
	if !cmd.Flags().Changed("token") && os.Getenv("VK_TOKEN") == "" {
		if v, ok := cfg["token"]; ok && v != nil {
			ro.Token = fmt.Sprint(v)
		}
	}
	return nil
}

// loadConfigFile resolves the config path (flag, or the default search
// locations) and parses it as JSON or YAML based on extension. It returns
// nil, nil when no config file is found anywhere.
func loadConfigFile(ro *RootOpts) (map[string]any, error) {
	path := ro.Config
	if path == "" {
		home, _ := os.UserHomeDir()
		for _, candidate := range []string{
			filepath.Join(home, ".config", "vkomic-core.json"),
			filepath.Join(home, ".config", "vkomic-core.yaml"),
			filepath.Join(home, ".config", "vkomic-core.yml"),
		} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return nil, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML config file: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("invalid JSON config file: %w", err)
		}
	}
	return cfg, nil
}
