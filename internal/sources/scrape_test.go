// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/trendlab/internal/httputil"
	"github.com/pdiddy/trendlab/pkg/types"
)

const homepageHTML = `<html><body>
<nav><a href="/about">About us</a><a href="#top">Protein top</a></nav>
<ul>
  <li><a href="/data/protein-consumption">Protein consumption 2024</a></li>
  <li><a href="https://other.example/bars">Cereal BAR sales</a></li>
  <li><a href="mailto:info@example.org">Protein contact</a></li>
  <li><a href="/data/coffee">Coffee imports</a></li>
  <li><a href="/data/protein-consumption">Protein consumption (duplicate)</a></li>
</ul>
</body></html>`

func TestGeneric_KeywordLinks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(homepageHTML))
	}))
	defer ts.Close()

	desc := types.SourceDescriptor{Name: "Destatis", URL: ts.URL, Kind: types.KindStatistical, CountryCode: "DE"}
	c := &Generic{desc: desc, get: httputil.Getter{Client: ts.Client()}}

	records, err := c.Search(context.Background(), []string{"protein", "bar"}, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Destatis: Protein consumption 2024", records[0].Title)
	assert.Equal(t, ts.URL+"/data/protein-consumption", records[0].URL)
	assert.Equal(t, "Statistical data from Destatis", records[0].Description)
	assert.Equal(t, "web_scraping", records[0].Data["method"])
	assert.Equal(t, "https://other.example/bars", records[1].URL)
}

func TestGeneric_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	c := &Generic{desc: types.SourceDescriptor{Name: "X", URL: ts.URL}, get: httputil.Getter{Client: ts.Client()}}
	_, err := c.Search(context.Background(), []string{"protein"}, 10)
	assert.Error(t, err)
}

func TestKeywordLinks_ScansFirstHundredAnchors(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&b, `<a href="/n%d">filler %d</a>`, i, i)
	}
	b.WriteString(`<a href="/late">protein late link</a></body></html>`)

	doc, err := parseHTML([]byte(b.String()))
	require.NoError(t, err)
	base, _ := url.Parse("https://example.org")

	assert.Empty(t, keywordLinks(doc, base, []string{"protein"}, 10))
}

func TestResolveHref(t *testing.T) {
	base, _ := url.Parse("https://example.org/news/")
	tests := []struct {
		href string
		want string
		ok   bool
	}{
		{"/a", "https://example.org/a", true},
		{"b", "https://example.org/news/b", true},
		{"https://x.org/c", "https://x.org/c", true},
		{"#frag", "", false},
		{"javascript:void(0)", "", false},
		{"MAILTO:x@y", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := resolveHref(base, tt.href)
		if ok != tt.ok || got != tt.want {
			t.Errorf("resolveHref(%q) = %q, %v; want %q, %v", tt.href, got, ok, tt.want, tt.ok)
		}
	}
}

const rssFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Industry News</title>
<item><title>Protein bars reach record sales</title><link>https://news.example/protein</link>
<description>Sports nutrition keeps growing.</description><pubDate>Mon, 06 Jan 2025 10:00:00 GMT</pubDate></item>
<item><title>Coffee prices fall</title><link>https://news.example/coffee</link><description>Commodities.</description></item>
</channel></rss>`

func TestIndustry_FeedFirst(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/feed" {
			w.Write([]byte(rssFeed))
			return
		}
		t.Errorf("unexpected homepage request %s", r.URL.Path)
	}))
	defer ts.Close()

	c := &Industry{desc: types.SourceDescriptor{Name: "NutraIngredients", URL: ts.URL, Kind: types.KindIndustry},
		get: httputil.Getter{Client: ts.Client()}, log: zaptest.NewLogger(t)}

	records, err := c.Search(context.Background(), []string{"protein"}, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "Protein bars reach record sales", records[0].Title)
	assert.Equal(t, "https://news.example/protein", records[0].URL)
	assert.Equal(t, "feed", records[0].Data["method"])
	assert.Equal(t, "2025-01-06", records[0].Data["published"])
}

const articleHTML = `<html><body>
<div class="post-card"><h3>Snack trends in Europe</h3><a href="/snacks">Read</a></div>
<article class="Article-teaser"><h2>Protein is everywhere</h2><a href="/protein">Read more</a></article>
<div class="sidebar"><h4>Not an article</h4><a href="/ads">Ad</a></div>
</body></html>`

func TestIndustry_ArticlesWhenNoFeed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/feed" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(articleHTML))
	}))
	defer ts.Close()

	c := &Industry{desc: types.SourceDescriptor{Name: "Supermarket News", URL: ts.URL, Kind: types.KindIndustry},
		get: httputil.Getter{Client: ts.Client()}, log: zaptest.NewLogger(t)}

	records, err := c.Search(context.Background(), []string{"protein"}, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Protein is everywhere", records[0].Title, "keyword matches come first")
	assert.Equal(t, ts.URL+"/protein", records[0].URL)
	assert.Equal(t, "Snack trends in Europe", records[1].Title)
	assert.Equal(t, "Industry article from Supermarket News", records[1].Description)
}

func TestIndustry_LinkFallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/feed" {
			w.Write([]byte("<html>not a feed</html>"))
			return
		}
		w.Write([]byte(homepageHTML))
	}))
	defer ts.Close()

	c := &Industry{desc: types.SourceDescriptor{Name: "mindbodygreen", URL: ts.URL, Kind: types.KindIndustry},
		get: httputil.Getter{Client: ts.Client()}, log: zaptest.NewLogger(t)}

	records, err := c.Search(context.Background(), []string{"protein"}, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Protein consumption 2024", records[0].Title)
	assert.Equal(t, "Industry news from mindbodygreen", records[0].Description)
}
