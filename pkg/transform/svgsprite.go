package transform

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"github.com/rotisserie/eris"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
)

// SimpleSuffix marks monochrome icons. Their colours are stripped so they can be styled from CSS.
const SimpleSuffix = "-simple.svg"

const stackStyle = ":root>svg{display:none}:root>svg:target{display:block}"

// SpriteIcon is one source file of a sprite.
type SpriteIcon struct {
	Path string
	ID   string
}

// SpriteResult holds the generated sprite and the optional preview page.
type SpriteResult struct {
	Sprite  []byte
	Preview []byte
}

func newSVGMinifier() *minify.M {
	m := minify.New()
	m.Add("image/svg+xml", &svg.Minifier{})
	return m
}

// PrepareIcon minifies an icon. Simple icons also lose their fill and style attributes.
func PrepareIcon(m *minify.M, name string, data []byte) ([]byte, error) {
	out, err := m.Bytes("image/svg+xml", data)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to minify %s", name)
	}

	if !strings.HasSuffix(name, SimpleSuffix) {
		return out, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(out); err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", name)
	}

	if root := doc.Root(); root != nil {
		stripColors(root)
	}

	out, err = doc.WriteToBytes()
	if err != nil {
		return nil, eris.Wrapf(err, "failed to serialize %s", name)
	}

	return bytes.ReplaceAll(out, []byte("&gt;"), []byte(">")), nil
}

func stripColors(el *etree.Element) {
	el.RemoveAttr("fill")
	el.RemoveAttr("style")
	for _, child := range el.ChildElements() {
		stripColors(child)
	}
}

// BuildSprite stacks the icons into a single SVG. Each icon becomes a nested <svg> with its ID
// and only the one addressed by the URL fragment is displayed.
func BuildSprite(icons []SpriteIcon, preview bool) (SpriteResult, error) {
	m := newSVGMinifier()

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("svg")
	root.CreateAttr("xmlns", "http://www.w3.org/2000/svg")
	root.CreateAttr("xmlns:xlink", "http://www.w3.org/1999/xlink")
	root.CreateElement("style").SetText(stackStyle)

	for _, icon := range icons {
		data, err := os.ReadFile(icon.Path)
		if err != nil {
			return SpriteResult{}, eris.Wrapf(err, "failed to read %s", icon.Path)
		}

		data, err = PrepareIcon(m, filepath.Base(icon.Path), data)
		if err != nil {
			return SpriteResult{}, err
		}

		iconDoc := etree.NewDocument()
		if err := iconDoc.ReadFromBytes(data); err != nil {
			return SpriteResult{}, eris.Wrapf(err, "failed to parse %s", icon.Path)
		}

		svgRoot := iconDoc.Root()
		if svgRoot == nil || svgRoot.Tag != "svg" {
			return SpriteResult{}, eris.Errorf("%s has no <svg> root element", icon.Path)
		}

		el := svgRoot.Copy()
		el.Space = ""
		for _, attr := range append([]etree.Attr(nil), el.Attr...) {
			if attr.Space == "xmlns" || (attr.Space == "" && attr.Key == "xmlns") {
				el.RemoveAttr(attr.FullKey())
			}
		}
		el.RemoveAttr("id")
		el.CreateAttr("id", icon.ID)
		namespaceIDs(el, icon.ID)
		root.AddChild(el)
	}

	sprite, err := doc.WriteToBytes()
	if err != nil {
		return SpriteResult{}, eris.Wrap(err, "failed to serialize sprite")
	}

	result := SpriteResult{Sprite: sprite}
	if preview {
		result.Preview = buildPreview(icons)
	}
	return result, nil
}

var reURLRef = regexp.MustCompile(`url\(\s*['"]?#([^)'"\s]+)['"]?\s*\)`)

// namespaceIDs prefixes the IDs inside an icon with the icon's ID and rewrites the url(#id)
// and href="#id" references to them. Icons drawn by different tools tend to reuse IDs like "a".
func namespaceIDs(root *etree.Element, prefix string) {
	ids := make(map[string]string)
	var collect func(*etree.Element)
	collect = func(el *etree.Element) {
		for _, child := range el.ChildElements() {
			if attr := child.SelectAttr("id"); attr != nil && attr.Space == "" {
				ids[attr.Value] = prefix + "-" + attr.Value
				attr.Value = ids[attr.Value]
			}
			collect(child)
		}
	}
	collect(root)
	if len(ids) == 0 {
		return
	}

	rewriteURLs := func(value string) string {
		return reURLRef.ReplaceAllStringFunc(value, func(match string) string {
			id := reURLRef.FindStringSubmatch(match)[1]
			if renamed, ok := ids[id]; ok {
				return "url(#" + renamed + ")"
			}
			return match
		})
	}

	var rewrite func(*etree.Element)
	rewrite = func(el *etree.Element) {
		for i := range el.Attr {
			attr := &el.Attr[i]
			if attr.Key == "href" && strings.HasPrefix(attr.Value, "#") {
				if renamed, ok := ids[attr.Value[1:]]; ok {
					attr.Value = "#" + renamed
				}
				continue
			}
			attr.Value = rewriteURLs(attr.Value)
		}
		if el.Tag == "style" {
			el.SetText(rewriteURLs(el.Text()))
		}
		for _, child := range el.ChildElements() {
			rewrite(child)
		}
	}
	rewrite(root)
}

func buildPreview(icons []SpriteIcon) []byte {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>SVG sprite preview</title>\n")
	buf.WriteString("<style>body{font-family:sans-serif}figure{display:inline-block;margin:1em;text-align:center}img{width:48px;height:48px}</style>\n")
	buf.WriteString("</head>\n<body>\n")
	for _, icon := range icons {
		id := html.EscapeString(icon.ID)
		fmt.Fprintf(&buf, "<figure><img src=\"sprite.svg#%s\" alt=\"%s\"><figcaption>%s</figcaption></figure>\n", id, id, id)
	}
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes()
}

// IconID derives the fragment ID of an icon from its file name.
func IconID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
