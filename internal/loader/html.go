package loader

import (
	"context"
	"strings"

	"golang.org/x/net/html"

	"corpora/internal/corpus"
	"corpora/internal/pipeline"
	"corpora/internal/services"
)

// HTML loads an HTML field as one document, keeping only visible text.
type HTML struct {
	Field string
}

// Name implements pipeline.Loader.
func (HTML) Name() string { return KindHTML }

// Load implements pipeline.Loader.
func (l HTML) Load(_ context.Context, row corpus.Row, pool *pipeline.Pool) ([]*pipeline.Workspace, error) {
	value, err := fieldValue(row, l.Field)
	if err != nil {
		return nil, err
	}
	text, err := ExtractText(value)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "loader", "html", row.ID.String(), err)
	}
	return single(row, pool, value, text), nil
}

// ExtractText returns the visible text of an HTML document. Script and style
// contents are dropped and block elements end with a newline.
func ExtractText(document string) (string, error) {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			buf.WriteString("\n\n")
		}
	}
	walk(root)
	return strings.TrimSpace(buf.String()), nil
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "section": true,
	"article": true, "blockquote": true, "pre": true, "tr": true,
}
