// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package crawler walks the VK discussion-board catalogue: it expands a
// root topic into a tree of CatalogueNode values by reading comment text
// through pkg/vkapi and parsing it through pkg/catalogue.
package crawler

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vkomic/vkomic-core/internal/metrics"
	"github.com/vkomic/vkomic-core/pkg/catalogue"
	"github.com/vkomic/vkomic-core/pkg/vkapi"
)

const (
	// maxDepth caps recursion regardless of configuration: root (0),
	// categories (1), genres (2), series (3). A fourth level exists only
	// for the configured "Comics" root topic.
	maxDepth = 4

	headExpandPermits = 25
	fullExpandPermits = 50
)

// Config selects the root topic to crawl and the one exception to the
// normal depth policy.
type Config struct {
	RootGroupID string
	RootTopicID string

	// ComicsTopicID, when non-empty and equal to RootTopicID, allows a
	// fourth expansion level; every other root stops at three.
	ComicsTopicID string
}

// Crawler walks the catalogue tree rooted at Config.RootTopicID.
type Crawler struct {
	api *vkapi.Client
	cfg Config
}

// New builds a Crawler over an already-configured API client.
func New(api *vkapi.Client, cfg Config) *Crawler {
	return &Crawler{api: api, cfg: cfg}
}

// FetchRootIndex reads the root topic in full, parses its comment text
// into top-level nodes, and applies the "EN FRANCAIS" root filter. It
// performs no expansion beyond the root: every returned topic child has
// IsLoaded=false and no children (file children are terminal and carry
// IsLoaded=true).
func (c *Crawler) FetchRootIndex(ctx context.Context) (*catalogue.Node, error) {
	root, err := c.fetchTopicNode(ctx, c.cfg.RootGroupID, c.cfg.RootTopicID, true)
	if err != nil {
		return nil, err
	}
	root.Children = catalogue.ApplyRootIndexFilter(root.Children)
	return root, nil
}

// FetchFullIndex crawls the whole tree starting from the root topic: the
// root's children (level 1, "categories") are expanded to level 2
// ("genres"), every level-2 node is expanded to level 3 ("series"/files),
// and — only when the root topic is the configured comics root — level 3
// is expanded once more to level 4.
func (c *Crawler) FetchFullIndex(ctx context.Context) (*catalogue.Node, error) {
	root, err := c.FetchRootIndex(ctx)
	if err != nil {
		return nil, err
	}

	// Each iteration expands one more level of nodes in place: depth=1
	// expands the categories (level 1) into genres (level 2), depth=2
	// expands genres into series (level 3). A normal root stops there;
	// only the configured comics root takes a third pass, expanding
	// series (level 3) into level 4.
	depthLimit := 2
	if c.cfg.ComicsTopicID != "" && c.cfg.ComicsTopicID == c.cfg.RootTopicID {
		depthLimit = maxDepth - 1
	}

	level := []*catalogue.Node{root}
	for depth := 1; depth <= depthLimit; depth++ {
		var next []*catalogue.Node
		for _, n := range level {
			next = append(next, n.Children...)
		}
		if len(next) == 0 {
			break
		}
		slog.Debug("expanding catalogue level", "depth", depth, "nodes", len(next))
		if err := c.batchExpand(ctx, next); err != nil {
			return nil, err
		}
		level = next
	}
	return root, nil
}

// FetchNodeContent expands a single node (its head, and its full children
// if the head reported more than one page) without touching the rest of
// the tree. Used by the host-facing "fetch single node" command.
func (c *Crawler) FetchNodeContent(ctx context.Context, groupID, topicID string) (*catalogue.Node, error) {
	return c.fetchTopicNode(ctx, groupID, topicID, true)
}

// fetchTopicNode reads one topic's comments (head-only first, full refetch
// if the head's reported count exceeds a single page) and turns them into
// a populated node with text-link and attachment children merged.
func (c *Crawler) fetchTopicNode(ctx context.Context, groupID, topicID string, full bool) (*catalogue.Node, error) {
	comments, total, err := c.api.FetchHead(ctx, groupID, topicID)
	if err != nil {
		return nil, err
	}
	if full && total > len(comments) {
		comments, total, err = c.api.FetchAllComments(ctx, groupID, topicID)
		if err != nil {
			return nil, err
		}
	}

	node := nodeFromIDs(groupID, topicID)
	node.Count = intPtr(total)
	node.StructureOnly = !full && total > len(comments)
	node.IsLoaded = true

	var texts []string
	for _, cm := range comments {
		texts = append(texts, cm.Text)
	}
	textChildren := catalogue.ParseTopicBody(strings.Join(texts, "\n"), topicID)
	attachmentChildren := catalogue.ExtractAttachments(comments)
	catalogue.MergeChildren(node, textChildren, attachmentChildren)
	return node, nil
}

// batchExpand expands a set of sibling nodes concurrently: first a head
// fetch (first page only) under a semaphore of 25, then — for any node
// whose reported count exceeds a single page — a full refetch under a
// wider semaphore of 50, run after every head fetch has completed so the
// two phases never compete for the same quota.
func (c *Crawler) batchExpand(ctx context.Context, nodes []*catalogue.Node) error {
	headSem := semaphore.NewWeighted(headExpandPermits)
	g, gctx := errgroup.WithContext(ctx)

	for _, n := range nodes {
		n := n
		if n.Kind == catalogue.KindFile {
			continue
		}
		if err := headSem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer headSem.Release(1)
			return c.expandHead(gctx, n)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fullSem := semaphore.NewWeighted(fullExpandPermits)
	g2, gctx2 := errgroup.WithContext(ctx)
	for _, n := range nodes {
		n := n
		if !n.StructureOnly {
			continue
		}
		if err := fullSem.Acquire(gctx2, 1); err != nil {
			return err
		}
		g2.Go(func() error {
			defer fullSem.Release(1)
			return c.expandFull(gctx2, n)
		})
	}
	return g2.Wait()
}

func (c *Crawler) expandHead(ctx context.Context, n *catalogue.Node) error {
	comments, total, err := c.api.FetchHead(ctx, n.GroupID, n.TopicID)
	if err != nil {
		return err
	}
	n.Count = intPtr(total)
	n.IsLoaded = true
	n.StructureOnly = total > len(comments)

	var texts []string
	for _, cm := range comments {
		texts = append(texts, cm.Text)
	}
	textChildren := catalogue.ParseTopicBody(strings.Join(texts, "\n"), n.TopicID)
	attachmentChildren := catalogue.ExtractAttachments(comments)
	catalogue.MergeChildren(n, textChildren, attachmentChildren)
	metrics.CrawlNodesExpandedTotal.Inc()
	slog.Debug("expanded node head", "topicId", n.TopicID, "count", total, "structureOnly", n.StructureOnly)
	return nil
}

func (c *Crawler) expandFull(ctx context.Context, n *catalogue.Node) error {
	comments, total, err := c.api.FetchAllComments(ctx, n.GroupID, n.TopicID)
	if err != nil {
		return err
	}
	n.Count = intPtr(total)
	n.StructureOnly = false

	var texts []string
	for _, cm := range comments {
		texts = append(texts, cm.Text)
	}
	textChildren := catalogue.ParseTopicBody(strings.Join(texts, "\n"), n.TopicID)
	attachmentChildren := catalogue.ExtractAttachments(comments)
	catalogue.MergeChildren(n, textChildren, attachmentChildren)
	metrics.CrawlNodesExpandedTotal.Inc()
	slog.Debug("expanded node full", "topicId", n.TopicID, "count", total)
	return nil
}

func nodeFromIDs(groupID, topicID string) *catalogue.Node {
	return &catalogue.Node{
		ID:      "topic_" + topicID,
		Kind:    catalogue.KindCategory,
		GroupID: groupID,
		TopicID: topicID,
	}
}

func intPtr(v int) *int { return &v }
