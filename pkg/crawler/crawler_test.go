// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package crawler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/vkomic/vkomic-core/pkg/catalogue"
	"github.com/vkomic/vkomic-core/pkg/vkapi"
)

// rewriteTransport redirects every request onto a local test server,
// since pkg/vkapi's endpoints are hardcoded api.vk.com URLs.
type rewriteTransport struct{ target string }

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target, err := url.Parse(rt.target)
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host
	req.Host = target.Host
	return http.DefaultTransport.RoundTrip(req)
}

// fakeServer answers board.getComments/execute calls from a fixed set of
// per-topic comment texts, keyed by topic id; every topic here fits on
// one page, which is all the crawler-level tests need.
func fakeServer(t *testing.T, byTopic map[string][]string) *vkapi.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		var topicID string
		if r.Method == http.MethodPost {
			topicID = r.FormValue("topic_id")
		} else {
			topicID = r.URL.Query().Get("topic_id")
		}
		texts := byTopic[topicID]

		items := make([]map[string]any, 0, len(texts))
		for _, txt := range texts {
			items = append(items, map[string]any{"text": txt})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{"count": len(texts), "items": items},
		})
	}))
	t.Cleanup(srv.Close)

	httpc := &http.Client{Transport: rewriteTransport{target: srv.URL}}
	return vkapi.NewWithHTTPClient("", httpc)
}

func TestFetchFullIndex_DepthConfiguration(t *testing.T) {
	nonComics := New(nil, Config{RootGroupID: "1", RootTopicID: "42"})
	if nonComics.cfg.ComicsTopicID == nonComics.cfg.RootTopicID {
		t.Fatal("non-comics root must not equal ComicsTopicID")
	}

	comics := New(nil, Config{RootGroupID: "1", RootTopicID: "42", ComicsTopicID: "42"})
	if comics.cfg.ComicsTopicID != comics.cfg.RootTopicID {
		t.Fatal("expected comics root to match configured id")
	}
}

// fourLevelChain wires topic "1" -> "10" -> "20" -> "30" -> "40", one
// child per level, for exercising FetchFullIndex's actual depth cutoff.
func fourLevelChain(t *testing.T) *vkapi.Client {
	t.Helper()
	return fakeServer(t, map[string][]string{
		"1":  {"[topic-1_10|L1]"},
		"10": {"[topic-1_20|L2]"},
		"20": {"[topic-1_30|L3]"},
		"30": {"[topic-1_40|L4]"},
	})
}

func TestFetchFullIndex_NonComicsRootStopsAtLevelThree(t *testing.T) {
	api := fourLevelChain(t)
	c := New(api, Config{RootGroupID: "1", RootTopicID: "1"})

	root, err := c.FetchFullIndex(context.Background())
	if err != nil {
		t.Fatalf("FetchFullIndex: %v", err)
	}

	l1 := root.Children[0]
	if !l1.IsLoaded {
		t.Fatal("expected level 1 to be expanded")
	}
	l2 := l1.Children[0]
	if !l2.IsLoaded {
		t.Fatal("expected level 2 to be expanded")
	}
	l3 := l2.Children[0]
	if l3.IsLoaded {
		t.Fatal("expected level 3 to remain unexpanded for a non-comics root")
	}
	if len(l3.Children) != 0 {
		t.Fatalf("expected level 3 to have no children yet, got %+v", l3.Children)
	}
}

func TestFetchFullIndex_ComicsRootReachesLevelFour(t *testing.T) {
	api := fourLevelChain(t)
	c := New(api, Config{RootGroupID: "1", RootTopicID: "1", ComicsTopicID: "1"})

	root, err := c.FetchFullIndex(context.Background())
	if err != nil {
		t.Fatalf("FetchFullIndex: %v", err)
	}

	l3 := root.Children[0].Children[0].Children[0]
	if !l3.IsLoaded {
		t.Fatal("expected level 3 to be expanded for the comics root")
	}
	if len(l3.Children) != 1 {
		t.Fatalf("expected level 3 to expose one level-4 child, got %+v", l3.Children)
	}
	l4 := l3.Children[0]
	if l4.IsLoaded {
		t.Fatal("expected level 4 to remain unexpanded — there is no level 5")
	}
}

func TestExpandHead_SinglePageNotStructureOnly(t *testing.T) {
	api := fakeServer(t, map[string][]string{
		"7": {"[topic-1_8|Child]"},
	})
	c := New(api, Config{})
	n := &catalogue.Node{GroupID: "1", TopicID: "7", Kind: catalogue.KindGenre}
	if err := c.expandHead(context.Background(), n); err != nil {
		t.Fatalf("expandHead: %v", err)
	}
	if !n.IsLoaded {
		t.Fatal("expected node to be marked loaded")
	}
	if n.StructureOnly {
		t.Fatal("single-page topic must not be marked structureOnly")
	}
	if len(n.Children) != 1 {
		t.Fatalf("expected one parsed child, got %+v", n.Children)
	}
}

func TestFetchRootIndex_FiltersToFrenchMarker(t *testing.T) {
	api := fakeServer(t, map[string][]string{
		"1": {"[topic-1_2|Comics EN FRANCAIS]", "[topic-1_3|Comics EN]"},
	})
	c := New(api, Config{RootGroupID: "1", RootTopicID: "1"})
	root, err := c.FetchRootIndex(context.Background())
	if err != nil {
		t.Fatalf("FetchRootIndex: %v", err)
	}
	if len(root.Children) != 1 || root.Children[0].Title != "Comics EN FRANCAIS" {
		t.Fatalf("expected only the FR-marked child, got %+v", root.Children)
	}
}
