package htmlctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// every context name appears in this page, and its first occurrence sits in
// the context it is named after
const fixture = `
<html>
    <head>
        <style>
        STYLE_TEXT

        h1 {
            color: "STYLE_DOUBLE_QUOTE";
            color: 'STYLE_SINGLE_QUOTE';
        }

        /*
         STYLE_COMMENT
         * */

        </style>
        <script>
        var foo = '\'SCRIPT_SINGLE_QUOTE';
        var foo2 = "SCRIPT_DOUBLE_QUOTE <b>";
        SCRIPT_TEXT
        /*

        Some SCRIPT_MULTI_COMMENT  here

        var foo2 = "SCRIPT_DOUBLE_QUOTE <b>";


        */
        // Some SCRIPT_LINE_COMMENT  here
        </script>
    </head>
    <body>
        <h1 a='<' foo=" ssfdsf ' ATTR_DOUBLE_QUOTE">HTML_TEXT</h1>
        <TAG>123</TAG>
        <HTML_TAG>
        <p title=ATTR_UNQUOTED>para</p>
        <b style="='" foo='fsdfs dfATTR_SINGLE_QUOTE'>dddd</b>
        ATTR_SINGLE_QUOTE
        <i ATTR_NAME="foo">ddd</i>
        <!--

        Some HTML_COMMENT here

        -->
        <img src="ATTR_DOUBLE_QUOTE" />
        <a href="ATTR_DOUBLE_QUOTE" />link</a>
        <script>
        var foo = '\'SCRIPT_SINGLE_QUOTE <h1>HTML_TEXT';
        </script>
    </body>
</html>
ATTR_SINGLE_QUOTE`

func primary(t *testing.T, doc, needle string) Context {
	t.Helper()
	occs, err := Scan(doc, needle)
	require.NoError(t, err)
	require.NotEmpty(t, occs, "needle %q not found", needle)
	return occs[0].Primary()
}

func TestScanEveryContextKind(t *testing.T) {
	for _, c := range AllContextKinds() {
		t.Run(c.Name(), func(t *testing.T) {
			assert.Equal(t, c.Name(), primary(t, fixture, c.Name()).Name())
		})
	}
}

func TestScanHTMLInsideScriptString(t *testing.T) {
	occs, err := Scan(fixture, "HTML_TEXT")
	require.NoError(t, err)
	require.Len(t, occs, 2)
	assert.Equal(t, KindScriptSingleQuote, occs[1].Primary().Kind())
}

func TestScanSimplePayloads(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want Kind
	}{
		{
			name: "text after encoded garbage",
			doc: `
<html>
    <body>
        &added=blah111%3C1%3E<br>::::: blahPAYLOAD<br>::::: :::::
    </body>
</html>`,
			want: KindHTMLText,
		},
		{
			name: "between two closed scripts",
			doc: `
<html>
    <script>foo</script>
        PAYLOAD
    <script>bar</script>
</html>`,
			want: KindHTMLText,
		},
		{
			name: "script opened twice",
			doc: `
<html>
    <script>foo
        PAYLOAD
    <script>bar</script>
</html>`,
			want: KindScriptText,
		},
		{
			name: "script closed twice",
			doc: `
<html>
    <script>foo</script>
        PAYLOAD
    </script>
</html>`,
			want: KindHTMLText,
		},
		{
			name: "markup inside comment",
			doc: `
<html>
    <!-- <body>PAYLOAD</body> -->
</html>`,
			want: KindHTMLComment,
		},
		{
			name: "html comment inside script",
			doc: `
<html>
    <script>
        <!-- <body>PAYLOAD</body> -->
    </script>
</html>`,
			want: KindScriptText,
		},
		{
			name: "single quoted attribute",
			doc: `
<html>
    <a foo='PAYLOAD'>
        bar
    </a>
</html>`,
			want: KindAttrSingleQuote,
		},
		{
			name: "single quoted attribute on script tag",
			doc: `
<html>
    <script foo='PAYLOAD'>
        bar
    </script>
</html>`,
			want: KindAttrSingleQuote,
		},
		{
			name: "uppercase script tag",
			doc:  `<SCRIPT>var a = PAYLOAD;</SCRIPT>`,
			want: KindScriptText,
		},
		{
			name: "end tag inside script string",
			doc:  `<script>var s = "</script>PAYLOAD";</script>`,
			want: KindHTMLText,
		},
		{
			name: "end tag with trailing space",
			doc:  `<script>x</script >PAYLOAD`,
			want: KindHTMLText,
		},
		{
			name: "script prefix is not an end tag",
			doc:  `<script>a = "</scripts>PAYLOAD"</script>`,
			want: KindScriptDoubleQuote,
		},
		{
			name: "line comment ends at newline",
			doc:  "<script>// note\nPAYLOAD</script>",
			want: KindScriptText,
		},
		{
			name: "escaped quote stays in string",
			doc:  `<script>var a = "\" PAYLOAD";</script>`,
			want: KindScriptDoubleQuote,
		},
		{
			name: "css has no line comments",
			doc:  `<style>// 'PAYLOAD'</style>`,
			want: KindStyleSingleQuote,
		},
		{
			name: "abrupt empty comment",
			doc:  `<!-->PAYLOAD`,
			want: KindHTMLText,
		},
		{
			name: "comment closed with bang",
			doc:  `<!-- x --!>PAYLOAD`,
			want: KindHTMLText,
		},
		{
			name: "doctype",
			doc:  `<!DOCTYPE PAYLOAD>`,
			want: KindHTMLComment,
		},
		{
			name: "attribute after boolean attribute",
			doc:  `<input disabled PAYLOAD=1>`,
			want: KindAttrName,
		},
		{
			name: "unquoted value ends at space",
			doc:  `<p a=b PAYLOAD>`,
			want: KindAttrName,
		},
		{
			name: "tag name",
			doc:  `<PAYLOAD>`,
			want: KindHTMLTag,
		},
		{
			name: "text after closed tag",
			doc:  `<a href="x">PAYLOAD</a>`,
			want: KindHTMLText,
		},
		{
			name: "unterminated comment",
			doc:  `<!-- PAYLOAD`,
			want: KindHTMLComment,
		},
		{
			name: "markup inside textarea",
			doc:  `<textarea><svg id=PAYLOAD onload=alert(1)></textarea>`,
			want: KindHTMLText,
		},
		{
			name: "attribute inside title",
			doc:  `<title><p title="PAYLOAD"></title>`,
			want: KindHTMLText,
		},
		{
			name: "after textarea end tag",
			doc:  `<TEXTAREA>x</TextArea><a title="PAYLOAD">`,
			want: KindAttrDoubleQuote,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := primary(t, tt.doc, "PAYLOAD")
			assert.Equal(t, tt.want, got.Kind(), "got %s", got)
		})
	}
}

func TestScanTextCanBreak(t *testing.T) {
	doc := `
<html>
    <a>PAYLOAD<</a>
</html>`
	c := primary(t, doc, "PAYLOAD<")
	assert.Equal(t, KindHTMLText, c.Kind())
	assert.True(t, c.CanBreak("PAYLOAD<"))
}

func TestScanURIAttributesAreExecutable(t *testing.T) {
	img := primary(t, `<html><img src="PAYLOAD" /></html>`, "PAYLOAD")
	assert.True(t, img.IsExecutable())
	assert.Equal(t, "img", img.Tag())
	assert.Equal(t, "src", img.Attr())

	a := primary(t, `<html><a href="PAYLOAD">foo</a></html>`, "PAYLOAD")
	assert.True(t, a.IsExecutable())

	div := primary(t, `<div title="PAYLOAD"></div>`, "PAYLOAD")
	assert.False(t, div.IsExecutable())

	handler := primary(t, `<body onload='PAYLOAD'>`, "PAYLOAD")
	assert.True(t, handler.IsExecutable())
}

func TestScanBreakoutLadder(t *testing.T) {
	tests := []struct {
		doc  string
		want []string
	}{
		{`<script>var a = "X";</script>`, []string{"SCRIPT_DOUBLE_QUOTE", "SCRIPT_TEXT", "HTML_TEXT"}},
		{`<a href='X'>`, []string{"ATTR_SINGLE_QUOTE", "HTML_TAG", "HTML_TEXT"}},
		{`<i X="1">`, []string{"ATTR_NAME", "HTML_TAG", "HTML_TEXT"}},
		{`<style>/* X */</style>`, []string{"STYLE_COMMENT", "STYLE_TEXT", "HTML_TEXT"}},
		{`<p>X</p>`, []string{"HTML_TEXT"}},
		{`<!-- X -->`, []string{"HTML_COMMENT", "HTML_TEXT"}},
	}
	for _, tt := range tests {
		t.Run(tt.doc, func(t *testing.T) {
			occs, err := Scan(tt.doc, "X")
			require.NoError(t, err)
			require.Len(t, occs, 1)
			names := make([]string, 0, len(occs[0].Contexts))
			for _, c := range occs[0].Contexts {
				names = append(names, c.Name())
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestScanLadderEndsInText(t *testing.T) {
	occs, err := Scan(fixture, "_")
	require.NoError(t, err)
	require.NotEmpty(t, occs)
	for _, o := range occs {
		require.NotEmpty(t, o.Contexts)
		assert.Equal(t, KindHTMLText, o.Contexts[len(o.Contexts)-1].Kind(), "offset %d", o.Start)
	}
}

func TestScanOverlapping(t *testing.T) {
	occs, err := Scan("aaaa", "aa")
	require.NoError(t, err)
	require.Len(t, occs, 3)
	for i, o := range occs {
		assert.Equal(t, i, o.Start)
		assert.Equal(t, i+2, o.End)
	}
}

func TestScanPositions(t *testing.T) {
	occs, err := Scan("ab\ncdX\n\nX", "X")
	require.NoError(t, err)
	require.Len(t, occs, 2)
	assert.Equal(t, 2, occs[0].Line)
	assert.Equal(t, 3, occs[0].Column)
	assert.Equal(t, 4, occs[1].Line)
	assert.Equal(t, 1, occs[1].Column)
}

func TestScanNeedleInsideDelimiter(t *testing.T) {
	// the needle starts inside "<!--" so it sees the state before it
	c := primary(t, "a<!--b-->", "!--b")
	assert.Equal(t, KindHTMLText, c.Kind())
}

func TestScanNoMatch(t *testing.T) {
	occs, err := Scan(fixture, "NOT_THERE")
	require.NoError(t, err)
	assert.Empty(t, occs)
}

func TestScanEmptyNeedle(t *testing.T) {
	_, err := Scan(fixture, "")
	assert.ErrorIs(t, err, ErrEmptyNeedle)

	_, err = ScanAll(fixture, []string{"a", ""})
	assert.ErrorIs(t, err, ErrEmptyNeedle)
}

func TestScanIsDeterministic(t *testing.T) {
	first, err := Scan(fixture, "QUOTE")
	require.NoError(t, err)
	second, err := Scan(fixture, "QUOTE")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScanAllMatchesScan(t *testing.T) {
	needles := []string{"HTML_TEXT", "SCRIPT_TEXT", "ATTR_NAME", "HTML_TEXT", "missing"}
	all, err := ScanAll(fixture, needles)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	for _, n := range needles {
		want, err := Scan(fixture, n)
		require.NoError(t, err)
		assert.Equal(t, want, all[n], n)
	}
}

func TestContextsAt(t *testing.T) {
	doc := `<div title="abc">`
	got, err := ContextsAt(doc, 13)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, KindAttrDoubleQuote, got[0].Kind())
	assert.Equal(t, "title", got[0].Attr())

	got, err = ContextsAt("<script>var a", len("<script>var a"))
	require.NoError(t, err)
	assert.Equal(t, KindScriptText, got[0].Kind())

	_, err = ContextsAt(doc, -1)
	assert.ErrorIs(t, err, ErrOffsetRange)
	_, err = ContextsAt(doc, len(doc)+1)
	assert.ErrorIs(t, err, ErrOffsetRange)
}

func TestKinds(t *testing.T) {
	occs, err := Scan(fixture, "ATTR_DOUBLE_QUOTE")
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindAttrDoubleQuote}, Kinds(occs))

	occs, err = Scan(fixture, "HTML_TEXT")
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindHTMLText, KindScriptSingleQuote}, Kinds(occs))
}

func TestScanRawTextElements(t *testing.T) {
	tests := []struct {
		doc  string
		want []string
	}{
		{`<textarea><b title="PAYLOAD"></textarea>`, []string{"HTML_TEXT(textarea)", "HTML_TEXT"}},
		{`<title>PAYLOAD</title>`, []string{"HTML_TEXT(title)", "HTML_TEXT"}},
		{`<iframe><script>PAYLOAD</script></iframe>`, []string{"HTML_TEXT(iframe)", "HTML_TEXT"}},
		{`<xmp></textarea>PAYLOAD</xmp>`, []string{"HTML_TEXT(xmp)", "HTML_TEXT"}},
		{`<plaintext></plaintext><b>PAYLOAD`, []string{"HTML_TEXT(plaintext)", "HTML_TEXT"}},
		{`<textarea title="PAYLOAD">`, []string{"ATTR_DOUBLE_QUOTE(textarea.title)", "HTML_TAG(textarea)", "HTML_TEXT"}},
	}
	for _, tt := range tests {
		occs, err := Scan(tt.doc, "PAYLOAD")
		require.NoError(t, err)
		require.Len(t, occs, 1, tt.doc)
		var got []string
		for _, c := range occs[0].Contexts {
			got = append(got, c.String())
		}
		assert.Equal(t, tt.want, got, tt.doc)
	}
}

func TestRawTextBreakoutLeavesElement(t *testing.T) {
	doc := `<textarea><svg onload=alert(1)></textarea>`
	inside, err := ContextsAt(doc, len("<textarea><"))
	require.NoError(t, err)
	assert.Equal(t, "HTML_TEXT(textarea)", inside[0].String())

	doc = `<textarea></textarea><svg onload=alert(1)></textarea>`
	after, err := ContextsAt(doc, len("<textarea></textarea><"))
	require.NoError(t, err)
	assert.Equal(t, KindHTMLTag, after[0].Kind())
}
