package inspect

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	css "github.com/andybalholm/cascadia"
)

// parse reads src into a node tree. html.Parse does not fail on any input,
// so no error is returned.
func parse(src string) *html.Node {
	n, _ := html.Parse(strings.NewReader(src))
	return n
}

// Text returns the flattened text content of an HTML document, with runs
// of whitespace collapsed to single spaces. Script and style bodies are
// left out.
func Text(src string) string {
	var b strings.Builder
	collectText(parse(src), &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// Links returns the href attribute of every a element in the document, in
// document order. Anchors without an href are skipped.
func Links(src string) []string {
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key == "href" {
					links = append(links, a.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(parse(src))
	return links
}

// Select runs a CSS selector over the document and returns the flattened
// text of each matching node. It returns an error if the selector doesn't
// compile.
func Select(src, selector string) ([]string, error) {
	sel, err := css.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("can't compile the selector %q: %v", selector, err)
	}

	ns := sel.MatchAll(parse(src))
	out := make([]string, len(ns))
	for i, n := range ns {
		var b strings.Builder
		collectText(n, &b)
		out[i] = strings.Join(strings.Fields(b.String()), " ")
	}
	return out, nil
}
