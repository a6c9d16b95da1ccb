// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package catalogue

import "strings"

const frenchMarker = "EN FRANCAIS"

// ApplyRootIndexFilter implements the root-index heuristic: if any node's
// uppercased title contains the marker "EN FRANCAIS", only those nodes are
// kept; otherwise every node passes through unchanged. It is applied once,
// to the root topic's parsed nodes, and is a domain filter for the
// intended content collection rather than a general parser rule.
func ApplyRootIndexFilter(nodes []*Node) []*Node {
	var marked []*Node
	for _, n := range nodes {
		if strings.Contains(strings.ToUpper(n.Title), frenchMarker) {
			marked = append(marked, n)
		}
	}
	if len(marked) > 0 {
		return marked
	}
	return nodes
}

// MergeChildren combines a node's text-link children with its attachment
// children, deduplicating by id (text links win on conflict since they are
// scanned first), and promotes the node's kind based on the merged result.
func MergeChildren(parent *Node, textChildren, attachmentChildren []*Node) {
	seen := make(map[string]bool, len(textChildren))
	merged := make([]*Node, 0, len(textChildren)+len(attachmentChildren))

	for _, c := range textChildren {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		merged = append(merged, c)
	}
	for _, c := range attachmentChildren {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		merged = append(merged, c)
	}

	parent.Children = merged
	PromoteKind(parent)
}
