package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypografText(t *testing.T) {
	tp, err := NewTypograf("ru", "en-US")
	require.NoError(t, err)
	require.Len(t, tp.styles, 2)

	tests := []struct {
		in, out string
	}{
		{`Он сказал "привет"`, "Он&nbsp;сказал «привет»"},
		{"Мир - это труд", "Мир&nbsp;— это труд"},
		{"Подождите...", "Подождите…"},
		{"(c) 2021", "© 2021"},
		{"дом  и  сад", "дом и&nbsp;сад"},
		{"я в доме", "я&nbsp;в&nbsp;доме"},
		{`"внешние "внутренние" кавычки"`, "«внешние „внутренние“ кавычки»"},
		{"\n    ", "\n    "},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.out, tp.Text(tt.in), tt.in)
	}
}

func TestTypografEnglishQuotes(t *testing.T) {
	tp, err := NewTypograf("en-US")
	require.NoError(t, err)
	assert.Equal(t, "She said “hello”", tp.Text(`She said "hello"`))
}

func TestTypografProcessKeepsMarkup(t *testing.T) {
	tp, err := NewTypograf("ru", "en-US")
	require.NoError(t, err)

	doc := `<p class="lead" title="a - b">Текст - "цитата"</p><script>var a = "x" - 1;</script><pre>a  -  b</pre>`
	out, err := tp.Process([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, `<p class="lead" title="a - b">Текст&nbsp;— «цитата»</p><script>var a = "x" - 1;</script><pre>a  -  b</pre>`, string(out))
}

func TestTypografRejectsUnknownLocales(t *testing.T) {
	_, err := NewTypograf("xx-invalid-!")
	assert.Error(t, err)

	_, err = NewTypograf("de")
	assert.Error(t, err)

	_, err = NewTypograf()
	assert.Error(t, err)
}

func TestTypografQuotesSpanInlineMarkup(t *testing.T) {
	tp, err := NewTypograf("ru", "en-US")
	require.NoError(t, err)

	tests := []struct {
		in, out string
	}{
		{`<p>Он сказал "<em>привет</em>" всем</p>`, `<p>Он&nbsp;сказал «<em>привет</em>» всем</p>`},
		{`<p>"<b>один</b> "два" три"</p>`, `<p>«<b>один</b> „два“ три»</p>`},
		{`<p>"один</p><p>"два"</p>`, `<p>«один</p><p>«два»</p>`},
		{`<p><b>раз</b> <i>"два"</i></p>`, `<p><b>раз</b> <i>«два»</i></p>`},
	}

	for _, tt := range tests {
		out, err := tp.Process([]byte(tt.in))
		require.NoError(t, err)
		assert.Equal(t, tt.out, string(out), tt.in)
	}
}

func TestTypografQuotesFollowTheScript(t *testing.T) {
	tp, err := NewTypograf("ru", "en-US")
	require.NoError(t, err)

	assert.Equal(t, "Он&nbsp;сказал “hello”", tp.Text(`Он сказал "hello"`))
	assert.Equal(t, "Он&nbsp;сказал “hello ‘world’”", tp.Text(`Он сказал "hello "world""`))
	assert.Equal(t, "She said «привет»", tp.Text(`She said "привет"`))

	out, err := tp.Process([]byte(`<p>She said "hi" and "<i>пока</i>"</p>`))
	require.NoError(t, err)
	assert.Equal(t, `<p>She said “hi” and «<i>пока</i>»</p>`, string(out))
}
