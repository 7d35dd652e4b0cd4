package parser

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<form action="/search?lang=en" method="get">
  <input type="text" name="q">
  <input type="hidden" name="csrf" value="x">
  <select name="sort"><option>a</option></select>
</form>
<form action="https://example.com/comment" method="post">
  <textarea name="body"></textarea>
  <input name="q">
  <button name="submit">go</button>
</form>
<input name="standalone">
<a href="/item?id=7&amp;ref=home">item</a>
<a href="https://other.example.org/?tracker=1">offsite</a>
<a href="javascript:void(0)">noop</a>
<a href="/item?id=8">dup</a>
<script>var x = 1;</script>
<script src="/app.js"></script>
</body></html>`

func TestExtractParameters(t *testing.T) {
	base, err := url.Parse("https://example.com/index.html")
	require.NoError(t, err)

	params, err := ExtractParameters([]byte(page), base)
	require.NoError(t, err)

	want := []Parameter{
		{Name: "lang", Type: "query", Method: "GET"},
		{Name: "q", Type: "query", Method: "GET", Action: "https://example.com/search?lang=en"},
		{Name: "csrf", Type: "query", Method: "GET", Action: "https://example.com/search?lang=en"},
		{Name: "sort", Type: "query", Method: "GET", Action: "https://example.com/search?lang=en"},
		{Name: "body", Type: "form", Method: "POST", Action: "https://example.com/comment"},
		{Name: "q", Type: "form", Method: "POST", Action: "https://example.com/comment"},
		{Name: "submit", Type: "form", Method: "POST", Action: "https://example.com/comment"},
		{Name: "standalone", Type: "query", Method: "GET"},
		{Name: "id", Type: "query", Method: "GET"},
		{Name: "ref", Type: "query", Method: "GET"},
	}
	assert.Equal(t, want, params)
}

func TestExtractParametersNoBase(t *testing.T) {
	params, err := ExtractParameters([]byte(`<a href="?page=2">next</a><input name="">`), nil)
	require.NoError(t, err)
	assert.Equal(t, []Parameter{{Name: "page", Type: "query", Method: "GET"}}, params)
}

func TestExtractParametersMalformed(t *testing.T) {
	params, err := ExtractParameters([]byte(`<form><input name="a"<input name=b>`), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, params)
}

func TestScriptBlocks(t *testing.T) {
	blocks, err := ScriptBlocks([]byte(page))
	require.NoError(t, err)
	assert.Equal(t, []string{"var x = 1;"}, blocks)
}
