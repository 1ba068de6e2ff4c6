// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxScannedAnchors bounds how many anchors a homepage scan inspects.
const maxScannedAnchors = 100

type link struct {
	text string
	href string
}

func parseHTML(body []byte) (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return doc, nil
}

// walk visits n depth-first. When fn returns false the node's children are skipped.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findFirst(root *html.Node, pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n != root && pred(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textContent returns the node's text with whitespace collapsed.
func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
		return true
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

func isAnchor(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.A && attr(n, "href") != ""
}

func isHeading(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4:
		return true
	}
	return false
}

// isArticle matches <article> and <div> elements whose class mentions
// "article" or "post".
func isArticle(n *html.Node) bool {
	if n.Type != html.ElementNode || (n.DataAtom != atom.Article && n.DataAtom != atom.Div) {
		return false
	}
	class := strings.ToLower(attr(n, "class"))
	return strings.Contains(class, "article") || strings.Contains(class, "post")
}

// resolveHref makes href absolute against base. Fragment-only, mailto and
// javascript links are rejected.
func resolveHref(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base == nil {
		return ref.String(), ref.IsAbs()
	}
	return base.ResolveReference(ref).String(), true
}

// keywordLinks scans the first maxScannedAnchors anchors of doc and keeps
// those whose visible text contains a keyword.
func keywordLinks(doc *html.Node, base *url.URL, keywords []string, limit int) []link {
	var out []link
	seen := make(map[string]bool)
	scanned := 0
	walk(doc, func(n *html.Node) bool {
		if scanned >= maxScannedAnchors || (limit > 0 && len(out) >= limit) {
			return false
		}
		if !isAnchor(n) {
			return true
		}
		scanned++
		text := textContent(n)
		if text == "" || !matchesAny(text, keywords) {
			return false
		}
		href, ok := resolveHref(base, attr(n, "href"))
		if !ok || seen[href] {
			return false
		}
		seen[href] = true
		out = append(out, link{text: text, href: href})
		return false
	})
	return out
}
