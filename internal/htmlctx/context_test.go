package htmlctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanBreak(t *testing.T) {
	tests := []struct {
		kind    Kind
		payload string
		want    bool
	}{
		{KindHTMLText, "<svg>", true},
		{KindHTMLText, "plain", false},
		{KindHTMLComment, "--><b>", true},
		{KindHTMLComment, "--!>", true},
		{KindHTMLComment, "->", false},
		{KindHTMLTag, "x>", true},
		{KindHTMLTag, "x", false},
		{KindAttrName, " onload", true},
		{KindAttrName, "/x", true},
		{KindAttrName, "xyz", false},
		{KindAttrUnquoted, "a b", true},
		{KindAttrUnquoted, "a/b", false},
		{KindAttrSingleQuote, "'", true},
		{KindAttrSingleQuote, `"`, false},
		{KindAttrDoubleQuote, `"`, true},
		{KindAttrDoubleQuote, "'", false},
		{KindScriptText, "</SCRIPT>", true},
		{KindScriptText, "alert(1)", false},
		{KindScriptSingleQuote, "';", true},
		{KindScriptSingleQuote, `\'`, false},
		{KindScriptSingleQuote, `\\'`, true},
		{KindScriptSingleQuote, "</script>", true},
		{KindScriptDoubleQuote, `"`, true},
		{KindScriptDoubleQuote, "'", false},
		{KindScriptLineComment, "\nalert(1)", true},
		{KindScriptLineComment, "\u2028", true},
		{KindScriptLineComment, "*/", false},
		{KindScriptMultiComment, "*/", true},
		{KindScriptMultiComment, "\n", false},
		{KindStyleText, "</style>", true},
		{KindStyleText, "</script>", false},
		{KindStyleSingleQuote, "'", true},
		{KindStyleDoubleQuote, `"`, true},
		{KindStyleComment, "*/", true},
		{KindStyleComment, "//", false},
	}
	for _, tt := range tests {
		c := New(tt.kind, "", "")
		assert.Equal(t, tt.want, c.CanBreak(tt.payload), "%s with %q", c, tt.payload)
	}
}

func TestCanBreakRawText(t *testing.T) {
	textarea := New(KindHTMLText, "TEXTAREA", "")
	assert.Equal(t, "HTML_TEXT(textarea)", textarea.String())
	assert.False(t, textarea.CanBreak("<svg onload=alert(1)>"))
	assert.True(t, textarea.CanBreak("</TextArea><svg>"))
	assert.False(t, New(KindHTMLText, "title", "").CanBreak("</textarea>"))
	assert.False(t, New(KindHTMLText, "plaintext", "").CanBreak("</plaintext><b>"))
}

func TestIsExecutable(t *testing.T) {
	assert.True(t, New(KindScriptText, "", "").IsExecutable())
	assert.True(t, New(KindScriptSingleQuote, "", "").IsExecutable())
	assert.True(t, New(KindScriptDoubleQuote, "", "").IsExecutable())
	assert.False(t, New(KindScriptLineComment, "", "").IsExecutable())
	assert.False(t, New(KindScriptMultiComment, "", "").IsExecutable())
	assert.False(t, New(KindHTMLText, "", "").IsExecutable())
	assert.False(t, New(KindStyleText, "", "").IsExecutable())

	assert.True(t, New(KindAttrDoubleQuote, "IMG", "SRC").IsExecutable())
	assert.True(t, New(KindAttrUnquoted, "form", "action").IsExecutable())
	assert.True(t, New(KindAttrSingleQuote, "div", "onclick").IsExecutable())
	assert.False(t, New(KindAttrSingleQuote, "div", "on").IsExecutable())
	assert.False(t, New(KindAttrDoubleQuote, "div", "title").IsExecutable())
	assert.False(t, New(KindAttrName, "a", "href").IsExecutable())
}

func TestContextString(t *testing.T) {
	assert.Equal(t, "HTML_TEXT", New(KindHTMLText, "ignored", "ignored").String())
	assert.Equal(t, "HTML_TAG(div)", New(KindHTMLTag, "DIV", "x").String())
	assert.Equal(t, "ATTR_DOUBLE_QUOTE(a.href)", New(KindAttrDoubleQuote, "A", "HREF").String())
	assert.Equal(t, "UNKNOWN", Kind(99).String())
}

func TestRegistry(t *testing.T) {
	all := AllContextKinds()
	assert.Len(t, all, int(kindCount))

	seen := map[string]bool{}
	for i, c := range all {
		assert.Equal(t, Kind(i), c.Kind())
		assert.False(t, seen[c.Name()], "duplicate %s", c.Name())
		seen[c.Name()] = true

		k, ok := KindByName(c.Name())
		assert.True(t, ok)
		assert.Equal(t, c.Kind(), k)
	}

	k, ok := KindByName(" script_text ")
	assert.True(t, ok)
	assert.Equal(t, KindScriptText, k)

	_, ok = KindByName("CSS_TEXT")
	assert.False(t, ok)
}

func TestRegionPredicates(t *testing.T) {
	assert.True(t, New(KindScriptLineComment, "", "").InScript())
	assert.False(t, New(KindStyleText, "", "").InScript())
	assert.True(t, New(KindStyleComment, "", "").InStyle())
	assert.True(t, New(KindAttrName, "a", "b").InAttribute())
	assert.False(t, New(KindHTMLTag, "a", "").InAttribute())
}
