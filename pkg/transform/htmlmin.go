package transform

import (
	"github.com/rotisserie/eris"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/svg"
)

// HTMLMinifier collapses whitespace in HTML documents. Document structure, end tags, quotes and
// default attribute values are kept so the output stays readable by every template consumer.
type HTMLMinifier struct {
	m *minify.M
}

func NewHTMLMinifier() *HTMLMinifier {
	m := minify.New()
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepQuotes:          true,
		KeepDefaultAttrVals: true,
	})
	m.Add("image/svg+xml", &svg.Minifier{})
	return &HTMLMinifier{m: m}
}

func (h *HTMLMinifier) Minify(name string, data []byte) ([]byte, error) {
	out, err := h.m.Bytes("text/html", data)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to minify %s", name)
	}
	return out, nil
}
