// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package catalogue

import (
	"regexp"
	"strings"
)

var (
	reArrowTail   = regexp.MustCompile(`\s*(?:->|=>|»|→).*$`)
	reTrailingURL = regexp.MustCompile(`https?://\S*$`)
	reTrailPunct  = regexp.MustCompile(`[:\-–—]+\s*$`)
	reLeadBullets = regexp.MustCompile(`^\s*[-–—'»«•*·]+\s*`)
	reTrailBullet = regexp.MustCompile(`\s*[-–—'»«•*·]+\s*$`)
	reLien        = regexp.MustCompile(`(?i)\(lien\)`)
)

// maxTitleLen guards against misparsed paragraphs being mistaken for a
// link's label.
const maxTitleLen = 200

// cleanTitle strips decorative noise from a raw, user-written label in
// the order described by the parser's title-cleaning rules: arrow-tail,
// trailing URL, trailing punctuation, leading/trailing bullets, then any
// "(lien)" marker.
func cleanTitle(raw string) string {
	s := raw
	s = reArrowTail.ReplaceAllString(s, "")
	s = reTrailingURL.ReplaceAllString(s, "")
	s = reTrailPunct.ReplaceAllString(s, "")
	s = reLeadBullets.ReplaceAllString(s, "")
	s = reTrailBullet.ReplaceAllString(s, "")
	s = reLien.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// validTitle reports whether a cleaned title passes the length filter
// (rejecting both empty recovery failures and misparsed paragraphs).
func validTitle(s string) bool {
	return len(s) >= 1 && len(s) < maxTitleLen
}

// containsVK reports whether a line mentions a vk.com host, used by the
// title-recovery fallbacks to avoid picking up a second URL as a title.
func containsVK(s string) bool {
	return strings.Contains(strings.ToLower(s), "vk.com")
}
