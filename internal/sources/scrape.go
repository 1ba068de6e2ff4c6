// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/pdiddy/trendlab/internal/httputil"
	"github.com/pdiddy/trendlab/pkg/types"
)

// Generic is the last-resort client for sources without a dedicated
// integration: it scans the homepage for anchors mentioning a keyword.
type Generic struct {
	desc types.SourceDescriptor
	get  httputil.Getter
}

// Name returns the catalog name.
func (c *Generic) Name() string { return c.desc.Name }

// Search fetches the homepage and turns keyword-matching links into records.
func (c *Generic) Search(ctx context.Context, keywords []string, limit int) ([]types.Record, error) {
	base, err := url.Parse(c.desc.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing source url: %w", err)
	}
	body, err := c.get.Get(ctx, c.desc.URL)
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(body)
	if err != nil {
		return nil, err
	}

	what := "Content"
	if c.desc.Kind == types.KindStatistical {
		what = "Statistical data"
	}

	var records []types.Record
	for _, l := range keywordLinks(doc, base, keywords, limit) {
		records = append(records, types.Record{
			Title:       c.desc.Name + ": " + l.text,
			Description: fmt.Sprintf("%s from %s", what, c.desc.Name),
			URL:         l.href,
			Data: map[string]any{
				"source": c.desc.Name,
				"method": "web_scraping",
			},
		})
	}
	return records, nil
}

// feedPath is tried before scraping; most industry news sites publish one.
const feedPath = "/feed"

// Industry reads an industry news site: RSS feed first, then article
// blocks on the homepage, then keyword links.
type Industry struct {
	desc types.SourceDescriptor
	get  httputil.Getter
	log  *zap.Logger
}

// Name returns the catalog name.
func (c *Industry) Name() string { return c.desc.Name }

// Search returns keyword-matching feed items, or homepage articles when the
// feed is missing or has no match.
func (c *Industry) Search(ctx context.Context, keywords []string, limit int) ([]types.Record, error) {
	if records, err := c.searchFeed(ctx, keywords, limit); err != nil {
		c.log.Debug("sources: feed unavailable, scraping homepage",
			zap.String("source", c.desc.Name), zap.Error(err))
	} else if len(records) > 0 {
		return records, nil
	}

	base, err := url.Parse(c.desc.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing source url: %w", err)
	}
	body, err := c.get.Get(ctx, c.desc.URL)
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(body)
	if err != nil {
		return nil, err
	}

	if records := c.articles(doc, base, keywords, limit); len(records) > 0 {
		return records, nil
	}

	var records []types.Record
	for _, l := range keywordLinks(doc, base, keywords, limit) {
		records = append(records, c.record(l.text, l.href, "Industry news from "+c.desc.Name, "link"))
	}
	return records, nil
}

func (c *Industry) searchFeed(ctx context.Context, keywords []string, limit int) ([]types.Record, error) {
	body, err := c.get.Get(ctx, strings.TrimRight(c.desc.URL, "/")+feedPath)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	var records []types.Record
	for _, it := range feed.Items {
		if limit > 0 && len(records) >= limit {
			break
		}
		title := strings.TrimSpace(it.Title)
		if title == "" || !matchesAny(title+" "+it.Description, keywords) {
			continue
		}
		r := c.record(title, strings.TrimSpace(it.Link), clip(it.Description, 300), "feed")
		if r.Description == "" {
			r.Description = "Industry article from " + c.desc.Name
		}
		if it.PublishedParsed != nil {
			r.Data["published"] = it.PublishedParsed.Format("2006-01-02")
		}
		records = append(records, r)
	}
	return records, nil
}

// articles extracts heading and link pairs from article blocks. Blocks whose
// heading mentions a keyword come first.
func (c *Industry) articles(doc *html.Node, base *url.URL, keywords []string, limit int) []types.Record {
	var matched, rest []types.Record
	seen := make(map[string]bool)
	walk(doc, func(n *html.Node) bool {
		if !isArticle(n) {
			return true
		}
		heading := findFirst(n, isHeading)
		anchor := findFirst(n, isAnchor)
		if heading == nil || anchor == nil {
			return true
		}
		title := textContent(heading)
		href, ok := resolveHref(base, attr(anchor, "href"))
		if title == "" || !ok || seen[href] {
			return false
		}
		seen[href] = true
		r := c.record(title, href, "Industry article from "+c.desc.Name, "article")
		if matchesAny(title, keywords) {
			matched = append(matched, r)
		} else {
			rest = append(rest, r)
		}
		return false
	})

	out := append(matched, rest...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (c *Industry) record(title, href, description, method string) types.Record {
	return types.Record{
		Title:       title,
		Description: description,
		URL:         href,
		Data: map[string]any{
			"source": c.desc.Name,
			"type":   "news_article",
			"method": method,
		},
	}
}
