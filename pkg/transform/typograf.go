package transform

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/text/language"
)

const nbsp = "&nbsp;"

type quoteStyle struct {
	outerOpen, outerClose string
	innerOpen, innerClose string
	dash                  string
}

var quoteStyles = map[string]quoteStyle{
	"ru": {"«", "»", "„", "“", nbsp + "— "},
	"en": {"“", "”", "‘", "’", " — "},
}

var (
	reDoubleSpace = regexp.MustCompile(`(\S)[ \t]{2,}`)
	reDash        = regexp.MustCompile(`(\S)[ \t]+-[ \t]+`)
	reShortWord   = regexp.MustCompile(`(^|[\s(]|&nbsp;)(\p{L}{1,2}) `)
	symbols       = strings.NewReplacer(
		"...", "…",
		"(c)", "©", "(C)", "©",
		"(r)", "®", "(R)", "®",
		"(tm)", "™", "(TM)", "™",
	)
)

// Typograf applies typographic rules to the text of HTML documents. The first locale selects
// dashes and is the fallback for quotes; a quoted run written in another locale's script gets
// that locale's quotes.
type Typograf struct {
	styles []localeStyle
}

type localeStyle struct {
	script *unicode.RangeTable
	quoteStyle
}

var scriptTables = map[string]*unicode.RangeTable{
	"Latn": unicode.Latin,
	"Cyrl": unicode.Cyrillic,
}

// NewTypograf returns a Typograf for the given BCP 47 locales.
func NewTypograf(locales ...string) (*Typograf, error) {
	if len(locales) == 0 {
		return nil, eris.New("typograf needs at least one locale")
	}

	t := &Typograf{}
	for _, name := range locales {
		tag, err := language.Parse(name)
		if err != nil {
			return nil, eris.Wrapf(err, "invalid locale %s", name)
		}

		base, _ := tag.Base()
		style, ok := quoteStyles[base.String()]
		if !ok {
			return nil, eris.Errorf("unsupported locale %s", name)
		}

		script, _ := tag.Script()
		t.styles = append(t.styles, localeStyle{script: scriptTables[script.String()], quoteStyle: style})
	}
	return t, nil
}

var skipTextIn = map[string]bool{
	"script":   true,
	"style":    true,
	"pre":      true,
	"code":     true,
	"textarea": true,
}

// blockTags end a run of text; quotes never pair across them.
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "body": true,
	"br": true, "button": true, "caption": true, "dd": true, "div": true, "dl": true,
	"dt": true, "figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true, "ol": true,
	"option": true, "p": true, "section": true, "table": true, "td": true, "th": true,
	"title": true, "tr": true, "ul": true,
}

// quoteState tracks open quotes across the text tokens of one block.
type quoteState struct {
	open     []quoteStyle
	prev     rune
	prevOpen bool
	script   *unicode.RangeTable
	// ahead is the document after the current token.
	ahead []byte
}

// Process rewrites the text nodes of an HTML document. Markup, attributes and the contents of
// script, style, pre, code and textarea elements are copied unchanged. Quotes pair across inline
// elements within the same block.
func (t *Typograf) Process(doc []byte) ([]byte, error) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	var out bytes.Buffer
	var state quoteState
	skip := 0
	pos := 0

	for {
		tt := z.Next()
		pos += len(z.Raw())
		state.ahead = doc[pos:]
		switch tt {
		case html.ErrorToken:
			if eris.Is(z.Err(), io.EOF) {
				return out.Bytes(), nil
			}
			return nil, eris.Wrap(z.Err(), "failed to tokenize HTML")
		case html.TextToken:
			if skip > 0 {
				out.Write(z.Raw())
			} else {
				out.WriteString(t.text(string(z.Raw()), &state))
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			out.Write(z.Raw())
			name, _ := z.TagName()
			if blockTags[string(name)] {
				state = quoteState{ahead: state.ahead}
			}
			if tt == html.StartTagToken && skipTextIn[string(name)] {
				skip++
			}
		case html.EndTagToken:
			out.Write(z.Raw())
			name, _ := z.TagName()
			if blockTags[string(name)] {
				state = quoteState{ahead: state.ahead}
			}
			if skipTextIn[string(name)] && skip > 0 {
				skip--
			}
		default:
			out.Write(z.Raw())
		}
	}
}

// Text applies the rules to a single run of (raw, entity-encoded) text.
func (t *Typograf) Text(text string) string {
	return t.text(text, &quoteState{})
}

func (t *Typograf) text(text string, state *quoteState) string {
	if strings.TrimSpace(text) == "" {
		if text != "" {
			state.prev = ' '
			state.prevOpen = false
		}
		return text
	}

	text = reDoubleSpace.ReplaceAllString(text, "$1 ")
	text = symbols.Replace(text)
	text = reDash.ReplaceAllString(text, "$1"+strings.ReplaceAll(t.styles[0].dash, "$", "$$"))
	text = t.quotes(text, state)

	// Every pass consumes the space after a word, so chains of short words need another pass.
	for range 4 {
		next := reShortWord.ReplaceAllString(text, "$1$2"+nbsp)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func (t *Typograf) quotes(text string, state *quoteState) string {
	var out strings.Builder
	for i, c := range text {
		if c != '"' {
			out.WriteRune(c)
			if unicode.IsLetter(c) {
				state.script = t.scriptOf(c, state.script)
			}
			state.prev = c
			state.prevOpen = false
			continue
		}

		if opensQuote(state) {
			style := t.styleFor(text[i+1:], state)
			if len(state.open) > 0 {
				style = state.open[0]
				out.WriteString(style.innerOpen)
			} else {
				out.WriteString(style.outerOpen)
			}
			state.open = append(state.open, style)
			state.prev = c
			state.prevOpen = true
			continue
		}

		style := t.styles[0].quoteStyle
		if n := len(state.open); n > 0 {
			style = state.open[0]
			state.open = state.open[:n-1]
		}
		if len(state.open) == 0 {
			out.WriteString(style.outerClose)
		} else {
			out.WriteString(style.innerClose)
		}
		state.prev = c
		state.prevOpen = false
	}
	return out.String()
}

func opensQuote(state *quoteState) bool {
	if state.prev == 0 || state.prevOpen || unicode.IsSpace(state.prev) {
		return true
	}
	switch state.prev {
	case '(', '[', '{', ';':
		return true
	}
	return false
}

// styleFor picks the quotes for a run starting at rest: the locale whose script matches the
// first quoted letter (looking past inline markup), then the script seen last, then the first
// locale.
func (t *Typograf) styleFor(rest string, state *quoteState) quoteStyle {
	script := state.script
	c, ok := firstLetter([]byte(rest))
	if !ok && !strings.Contains(rest, `"`) {
		c, ok = firstLetter(state.ahead)
	}
	if ok {
		script = t.scriptOf(c, nil)
	}

	for _, ls := range t.styles {
		if ls.script != nil && ls.script == script {
			return ls.quoteStyle
		}
	}
	return t.styles[0].quoteStyle
}

// firstLetter returns the first letter outside of tags, stopping at the next quote.
func firstLetter(text []byte) (rune, bool) {
	inTag := false
	for len(text) > 0 {
		c, size := utf8.DecodeRune(text)
		text = text[size:]
		switch {
		case inTag:
			inTag = c != '>'
		case c == '<':
			inTag = true
		case c == '"':
			return 0, false
		case unicode.IsLetter(c):
			return c, true
		}
	}
	return 0, false
}

func (t *Typograf) scriptOf(c rune, fallback *unicode.RangeTable) *unicode.RangeTable {
	for _, ls := range t.styles {
		if ls.script != nil && unicode.Is(ls.script, c) {
			return ls.script
		}
	}
	return fallback
}
