package shopping

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// selector 簡化的 CSS 選擇器：標籤、屬性值或 class，空值表示不限
type selector struct {
	tag   atom.Atom
	attr  string
	value string
	class string
}

var (
	nameSelectors = []selector{
		{tag: atom.Span, attr: "data-automation-id", value: "product-title"},
		{tag: atom.Span, class: "normal"},
		{tag: atom.Span, class: "f6"},
	}
	priceSelectors = []selector{
		{attr: "data-automation-id", value: "product-price"},
		{tag: atom.Div, class: "price-main"},
		{tag: atom.Span, class: "price"},
	}
)

// ParseListings 從搜尋結果頁取出商品，每個 data-item-id 區塊為一個商品
func ParseListings(r io.Reader, baseURL string) ([]Listing, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page: %w", err)
	}

	base, _ := url.Parse(baseURL)

	var listings []Listing
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasAttr(n, "data-item-id") {
			listings = append(listings, parseTile(n, base))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return listings, nil
}

func parseTile(tile *html.Node, base *url.URL) Listing {
	var l Listing
	for _, sel := range nameSelectors {
		if n := find(tile, sel.match); n != nil {
			if l.Name = textOf(n); l.Name != "" {
				break
			}
		}
	}

	if link := find(tile, isProductLink); link != nil {
		l.URL = resolveHref(base, attr(link, "href"))
	}

	for _, sel := range priceSelectors {
		if n := find(tile, sel.match); n != nil {
			if l.Price = textOf(n); l.Price != "" {
				break
			}
		}
	}
	return l
}

func (s selector) match(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != 0 && n.DataAtom != s.tag {
		return false
	}
	if s.attr != "" && attr(n, s.attr) != s.value {
		return false
	}
	if s.class != "" && !hasClass(n, s.class) {
		return false
	}
	return true
}

func isProductLink(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.A && strings.Contains(attr(n, "href"), "/ip/")
}

// find 深度優先尋找第一個符合的子孫節點
func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			return c
		}
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func resolveHref(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
