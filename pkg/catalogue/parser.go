// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package catalogue

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reEmbedded = regexp.MustCompile(`\[topic-(\d+)_(\d+)\|([^\]]+)\]`)
	reMention  = regexp.MustCompile(`@topic-(\d+)_(\d+)(?:\?post=(\d+))?(?:\s*\(([^)]+)\))?`)
	reInverted = regexp.MustCompile(`https?://(?:[a-zA-Z0-9]+\.)?vk\.com/topic-(\d+)_(\d+)\|([^\]]+)\]`)
	reBareURL  = regexp.MustCompile(`https?://(?:[a-zA-Z0-9]+\.)?vk\.com/topic-(\d+)_(\d+)(?:\?post=(\d+))?`)
	reDocURL   = regexp.MustCompile(`https?://(?:[a-zA-Z0-9]+\.)?vk\.com/doc(-?\d+)_(\d+)`)
)

// ParseTopicBody scans the concatenated text of a topic's comments and
// returns the ordered, deduplicated sequence of CatalogueNodes it links
// to, following the four link syntaxes and the bare document URL syntax
// described in §4.1, in that priority order. A node whose topic id
// equals excludeTopicID is dropped, preventing a topic from linking to
// itself.
func ParseTopicBody(text string, excludeTopicID string) []*Node {
	p := &parseState{
		seen:    make(map[string]bool),
		exclude: excludeTopicID,
	}

	p.scanEmbedded(text)
	p.scanMentions(text)
	p.scanInverted(text)
	p.scanBareURLs(text)
	p.scanDocURLs(text)

	return p.nodes
}

type parseState struct {
	nodes   []*Node
	seen    map[string]bool
	exclude string
}

func (p *parseState) add(n *Node) {
	if p.seen[n.ID] {
		return
	}
	if p.exclude != "" && n.TopicID == p.exclude {
		return
	}
	if !validTitle(n.Title) {
		return
	}
	p.seen[n.ID] = true
	p.nodes = append(p.nodes, n)
}

func (p *parseState) scanEmbedded(text string) {
	for _, m := range reEmbedded.FindAllStringSubmatch(text, -1) {
		group, topic, label := m[1], m[2], m[3]
		title := cleanTitle(label)
		if title == "" {
			title = fallbackTopicTitle(topic)
		}
		p.add(&Node{
			ID:      "topic_" + topic,
			Title:   title,
			Kind:    KindGenre,
			URL:     vkTopicURL(group, topic, ""),
			GroupID: group,
			TopicID: topic,
		})
	}
}

func (p *parseState) scanMentions(text string) {
	for _, m := range reMention.FindAllStringSubmatch(text, -1) {
		group, topic, post, label := m[1], m[2], m[3], m[4]
		id := "topic_" + topic
		if post != "" {
			id = "topic_" + topic + "_post" + post
		}
		title := fallbackTopicTitle(topic)
		if label != "" {
			if t := cleanTitle(label); t != "" {
				title = t
			}
		}
		p.add(&Node{
			ID:      id,
			Title:   title,
			Kind:    KindGenre,
			URL:     vkTopicURL(group, topic, post),
			GroupID: group,
			TopicID: topic,
		})
	}
}

func (p *parseState) scanInverted(text string) {
	for _, m := range reInverted.FindAllStringSubmatch(text, -1) {
		group, topic, label := m[1], m[2], m[3]
		title := cleanTitle(label)
		if title == "" {
			title = fallbackTopicTitle(topic)
		}
		p.add(&Node{
			ID:      "topic_" + topic,
			Title:   title,
			Kind:    KindGenre,
			URL:     vkTopicURL(group, topic, ""),
			GroupID: group,
			TopicID: topic,
		})
	}
}

// scanBareURLs implements syntax 4: a plain https?://<sub>.vk.com/topic-...
// URL with no surrounding link markup, title recovered from context.
func (p *parseState) scanBareURLs(text string) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		for _, loc := range reBareURL.FindAllStringSubmatchIndex(line, -1) {
			group := line[loc[2]:loc[3]]
			topic := line[loc[4]:loc[5]]
			post := ""
			if loc[6] >= 0 {
				post = line[loc[6]:loc[7]]
			}

			before := line[:loc[0]]
			after := line[loc[1]:]
			var prev string
			hasPrev := i > 0
			if hasPrev {
				prev = lines[i-1]
			}

			title := recoverTitle(before, prev, hasPrev, after, fallbackTopicTitle(topic))

			id := "topic_" + topic
			if post != "" {
				id = "topic_" + topic + "_post" + post
			}
			p.add(&Node{
				ID:      id,
				Title:   title,
				Kind:    KindGenre,
				URL:     vkTopicURL(group, topic, post),
				GroupID: group,
				TopicID: topic,
			})
		}
	}
}

// scanDocURLs implements syntax 5: a plain document URL, producing a file
// node with the same title-recovery rules as syntax 4, plus a preference
// for the previous line when the recovered title looks like a download
// button's caption ("telecharger"/"download").
func (p *parseState) scanDocURLs(text string) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		for _, loc := range reDocURL.FindAllStringSubmatchIndex(line, -1) {
			owner := strings.TrimPrefix(line[loc[2]:loc[3]], "-")
			docID := line[loc[4]:loc[5]]

			before := line[:loc[0]]
			after := line[loc[1]:]
			var prev string
			hasPrev := i > 0
			if hasPrev {
				prev = lines[i-1]
			}

			fallback := "Document " + docID
			title := recoverTitle(before, prev, hasPrev, after, fallback)

			if looksLikeDownloadCaption(title) && hasPrev {
				prevTrim := strings.TrimSpace(prev)
				if prevTrim != "" && !containsVK(prevTrim) {
					if t := cleanTitle(prevTrim); validTitle(t) {
						title = t
					}
				}
			}

			p.add(&Node{
				ID:      "doc_" + docID,
				Title:   title,
				Kind:    KindFile,
				URL:     line[loc[0]:loc[1]],
				OwnerID: owner,
				DocID:   docID,
				IsLoaded: true,
			})
		}
	}
}

var reDownloadCaption = regexp.MustCompile(`(?i)telecharger|download`)

func looksLikeDownloadCaption(title string) bool {
	return reDownloadCaption.MatchString(title)
}

// recoverTitle implements the shared priority order used by bare URL and
// document URL parsing: same-line-before, previous-line, same-line-after,
// then a caller-supplied fallback.
func recoverTitle(before, prev string, hasPrev bool, after, fallback string) string {
	if beforeTrim := strings.TrimSpace(before); len(beforeTrim) >= 2 {
		if t := cleanTitle(beforeTrim); validTitle(t) {
			return t
		}
	}
	if hasPrev {
		if prevTrim := strings.TrimSpace(prev); prevTrim != "" && !containsVK(prevTrim) {
			if t := cleanTitle(prevTrim); validTitle(t) {
				return t
			}
		}
	}
	if afterTrim := strings.TrimSpace(after); len(afterTrim) >= 2 && !containsVK(afterTrim) {
		if t := cleanTitle(afterTrim); validTitle(t) {
			return t
		}
	}
	return fallback
}

func fallbackTopicTitle(topic string) string {
	return "Topic " + topic
}

func vkTopicURL(group, topic, post string) string {
	u := fmt.Sprintf("https://vk.com/topic-%s_%s", group, topic)
	if post != "" {
		u += "?post=" + post
	}
	return u
}

// ExtractAttachments iterates a topic's comments, keeping "doc" attachments,
// deduplicating by document URL, and producing terminal file nodes.
func ExtractAttachments(comments []Comment) []*Node {
	var nodes []*Node
	seenURLs := make(map[string]bool)

	for _, c := range comments {
		for _, att := range c.Attachments {
			if att.Type != "doc" {
				continue
			}
			doc := att.Doc
			if doc.URL == "" || seenURLs[doc.URL] {
				continue
			}
			seenURLs[doc.URL] = true

			title := doc.Title
			if title == "" {
				title = "Document " + strconv.FormatInt(doc.ID, 10)
			}

			nodes = append(nodes, &Node{
				ID:        "doc_" + strconv.FormatInt(doc.ID, 10),
				Title:     title,
				Kind:      KindFile,
				URL:       doc.URL,
				Extension: strings.ToUpper(doc.Ext),
				SizeBytes: doc.Size,
				OwnerID:   strconv.FormatInt(doc.OwnerID, 10),
				DocID:     strconv.FormatInt(doc.ID, 10),
				AccessKey: doc.AccessKey,
				IsLoaded:  true,
			})
		}
	}

	return nodes
}
