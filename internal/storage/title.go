package storage

import (
	"golang.org/x/net/html"
	"strings"
)

// TitleOf returns the text of the first <title> element in markup, or ""
// when there is none.
func TitleOf(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return ""
	}

	var title string
	var visit func(*html.Node) bool
	visit = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return true
		}
		// Titles inside inline SVG are not the document title.
		if n.Type == html.ElementNode && n.Data == "svg" {
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if visit(c) {
				return true
			}
		}
		return false
	}

	visit(doc)
	return title
}
