package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New("bbcode")
	assert.Error(t, err)

	r, err := New("")
	require.NoError(t, err)
	assert.Equal(t, FormatPlain, r.Format())
}

func TestPlainHTML(t *testing.T) {
	r, err := New(FormatPlain)
	require.NoError(t, err)

	out, err := r.HTML("Hello <b>there</b>\nsee https://example.com/x?a=1")
	require.NoError(t, err)

	assert.Contains(t, out, "Hello &lt;b&gt;there&lt;/b&gt;")
	assert.Contains(t, out, "<br")
	assert.Contains(t, out, `href="https://example.com/x?a=1"`)
	assert.Contains(t, out, `rel="nofollow noreferrer"`)
}

func TestPlainLinksWWW(t *testing.T) {
	out := Plain("visit www.example.com today")
	assert.Contains(t, out, `<a href="http://www.example.com">www.example.com</a>`)
}

func TestMarkdownHTML(t *testing.T) {
	r, err := New(FormatMarkdown)
	require.NoError(t, err)

	out, err := r.HTML("**bold** line\nnext <script>alert(1)</script>")
	require.NoError(t, err)

	assert.Contains(t, out, "<strong>bold</strong>")
	assert.Contains(t, out, "<br")
	assert.NotContains(t, out, "<script>")
}

func TestEmptyMessage(t *testing.T) {
	r, err := New(FormatPlain)
	require.NoError(t, err)
	out, err := r.HTML("  \n ")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("a &amp; <b>b</b><br />c")
	assert.True(t, strings.HasPrefix(got, "a & b"))
}
