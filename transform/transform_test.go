package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanHTMLRemovesScripts(t *testing.T) {
	input := `<html><head><script>alert(1)</script><style>body{}</style></head><body><noscript>js off</noscript><p>content</p></body></html>`

	out, err := CleanHTML(input, CleanOptions{})
	require.NoError(t, err)
	assert.NotContains(t, out, "alert(1)")
	assert.NotContains(t, out, "body{}")
	assert.NotContains(t, out, "js off")
	assert.Contains(t, out, "<p>content</p>")
}

func TestCleanHTMLMainContentMode(t *testing.T) {
	input := `<html><body>
		<nav><a href="/home">home</a></nav>
		<header>site header</header>
		<main><h1>Article</h1><p>body text</p></main>
		<footer>copyright</footer>
	</body></html>`

	out, err := CleanHTML(input, CleanOptions{OnlyMainContent: true})
	require.NoError(t, err)
	assert.Contains(t, out, "Article")
	assert.Contains(t, out, "body text")
	assert.NotContains(t, out, "site header")
	assert.NotContains(t, out, "copyright")
	assert.NotContains(t, out, "home")
}

func TestCleanHTMLIncludeExcludeTags(t *testing.T) {
	input := `<html><body><article><p>keep</p><aside class="ads">ads</aside></article><div id="comments">noise</div></body></html>`

	out, err := CleanHTML(input, CleanOptions{
		IncludeTags: []string{"article"},
		ExcludeTags: []string{".ads"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "keep")
	assert.NotContains(t, out, "ads")
	assert.NotContains(t, out, "noise")
}

func TestCleanHTMLBase64Images(t *testing.T) {
	input := `<html><body><img src="data:image/png;base64,iVBORw0KGgo="><img src="/logo.png"></body></html>`

	out, err := CleanHTML(input, CleanOptions{RemoveBase64Images: true, BaseURL: "https://example.com/page"})
	require.NoError(t, err)
	assert.NotContains(t, out, "base64,iVBORw0KGgo=")
	assert.Contains(t, out, "https://example.com/logo.png")
}

func TestCleanHTMLAbsolutizesURLs(t *testing.T) {
	input := `<html><body><a href="/docs/guide">guide</a><a href="https://other.com/x">external</a><img src="../img/pic.png"></body></html>`

	out, err := CleanHTML(input, CleanOptions{BaseURL: "https://example.com/a/b"})
	require.NoError(t, err)
	assert.Contains(t, out, `href="https://example.com/docs/guide"`)
	assert.Contains(t, out, `href="https://other.com/x"`)
	assert.Contains(t, out, `src="https://example.com/img/pic.png"`)
}

func TestMarkdownConvert(t *testing.T) {
	conv := NewMarkdownConverter()

	md, err := conv.Convert(`<html><body><h1>Title</h1><p>Some <strong>bold</strong> text and a <a href="/link">link</a>.</p></body></html>`, "https://example.com")
	require.NoError(t, err)
	assert.Contains(t, md, "# Title")
	assert.Contains(t, md, "**bold**")
	assert.Contains(t, md, "[link](https://example.com/link)")
}

func TestMarkdownConvertTable(t *testing.T) {
	conv := NewMarkdownConverter()

	md, err := conv.Convert(`<table><thead><tr><th>A</th><th>B</th></tr></thead><tbody><tr><td>1</td><td>2</td></tr></tbody></table>`, "")
	require.NoError(t, err)
	assert.Contains(t, md, "| A | B |")
	assert.Contains(t, md, "| 1 | 2 |")
}

func TestMarkdownConvertEmpty(t *testing.T) {
	conv := NewMarkdownConverter()

	md, err := conv.Convert("   ", "")
	require.NoError(t, err)
	assert.Empty(t, md)
}

func TestExtractLinks(t *testing.T) {
	input := `<html><body>
		<a href="/first">one</a>
		<a href="https://example.com/second#frag">two</a>
		<a href="/first">dup</a>
		<a href="#top">anchor</a>
		<a href="javascript:void(0)">js</a>
		<a href="mailto:a@b.c">mail</a>
		<a href="tel:+123">tel</a>
	</body></html>`

	links, err := ExtractLinks(input, "https://example.com/base")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/first",
		"https://example.com/second",
	}, links)
}

func TestExtractLinksPreservesDocumentOrder(t *testing.T) {
	input := `<a href="/c">c</a><a href="/a">a</a><a href="/b">b</a>`

	links, err := ExtractLinks(input, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/c",
		"https://example.com/a",
		"https://example.com/b",
	}, links)
}

func TestExtractImages(t *testing.T) {
	input := `<html><body>
		<img src="/a.png">
		<img src="data:image/png;base64,AAAA">
		<img src="/a.png">
		<img src="https://cdn.example.com/b.jpg">
	</body></html>`

	images, err := ExtractImages(input, "https://example.com", true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/a.png",
		"https://cdn.example.com/b.jpg",
	}, images)

	withData, err := ExtractImages(input, "https://example.com", false)
	require.NoError(t, err)
	assert.Contains(t, withData, "data:image/png;base64,AAAA")
}

func TestExtractMetadata(t *testing.T) {
	input := `<html lang="en"><head>
		<title> Page Title </title>
		<meta name="description" content="a description">
		<meta property="og:title" content="OG Title">
		<meta property="og:image" content="https://example.com/og.png">
		<meta property="og:site_name" content="Example">
	</head><body></body></html>`

	meta := ExtractMetadata(input)
	assert.Equal(t, "Page Title", meta.Title)
	assert.Equal(t, "a description", meta.Description)
	assert.Equal(t, "en", meta.Language)
	assert.Equal(t, "OG Title", meta.OGTitle)
	assert.Equal(t, "https://example.com/og.png", meta.OGImage)
	assert.Equal(t, "Example", meta.OGSiteName)
}

func TestExtractMetadataOGDescriptionFallback(t *testing.T) {
	input := `<html><head><meta property="og:description" content="og desc"></head></html>`

	meta := ExtractMetadata(input)
	assert.Equal(t, "og desc", meta.Description)
}

func TestExtractMetadataBrokenHTML(t *testing.T) {
	meta := ExtractMetadata("<<<not html")
	assert.Empty(t, meta.Title)
}
