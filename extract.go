package identify

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// ExtractProductImageURL finds the representative product image of a page.
// Priority: og:image / itemprop image meta tags > first <img> whose class
// hints "product" > first <img> as last resort. Returns "" when the page has
// no usable image at all; relative sources are resolved against pageURL.
func ExtractProductImageURL(htmlText, pageURL string) string {
	doc, err := html.Parse(strings.NewReader(htmlText))
	if err != nil {
		return ""
	}

	base, baseErr := url.Parse(pageURL)

	var metaImage, productImg, firstImg string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				var property, itemprop, name, content string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "property":
						property = strings.ToLower(attr.Val)
					case "itemprop":
						itemprop = strings.ToLower(attr.Val)
					case "name":
						name = strings.ToLower(attr.Val)
					case "content":
						content = attr.Val
					}
				}
				if content != "" && metaImage == "" {
					if property == "og:image" || itemprop == "image" || name == "twitter:image" {
						metaImage = content
					}
				}
			case "img":
				var src, class string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "src":
						src = attr.Val
					case "class":
						class = strings.ToLower(attr.Val)
					}
				}
				if src != "" {
					if firstImg == "" {
						firstImg = src
					}
					if productImg == "" && strings.Contains(class, "product") {
						productImg = src
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	chosen := metaImage
	if chosen == "" {
		chosen = productImg
	}
	if chosen == "" {
		chosen = firstImg
	}
	if chosen == "" {
		return ""
	}

	if baseErr == nil {
		if ref, err := url.Parse(chosen); err == nil {
			return base.ResolveReference(ref).String()
		}
	}
	return chosen
}

// ExtractMarkdownLinks pulls [title](url) pairs and bare http URLs out of
// free-text answers. Order of appearance is preserved; duplicates are kept
// (ranking sorts them adjacently).
func ExtractMarkdownLinks(text string) []MarkdownLink {
	var links []MarkdownLink
	for _, m := range markdownLinkRe.FindAllStringSubmatch(text, -1) {
		links = append(links, MarkdownLink{Title: strings.TrimSpace(m[1]), URL: m[2]})
	}
	seen := make(map[string]bool, len(links))
	for _, l := range links {
		seen[l.URL] = true
	}
	for _, m := range bareURLRe.FindAllString(text, -1) {
		trimmed := strings.TrimRight(m, ".,;:)")
		if !seen[trimmed] {
			seen[trimmed] = true
			links = append(links, MarkdownLink{URL: trimmed})
		}
	}
	return links
}

// MarkdownLink is a link lifted from a free-text answer.
type MarkdownLink struct {
	Title string
	URL   string
}
