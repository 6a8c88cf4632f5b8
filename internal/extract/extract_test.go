package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_DenylistRemoval(t *testing.T) {
	html := `<html><head><title>Denylist</title></head><body>
		<nav>Navigation menu text that is long enough to count as a fragment here</nav>
		<script>var secret = "script text should never appear";</script>
		<div class="ads">Buy this amazing product now, limited offer for readers!</div>
		<article>
			<p>` + strings.Repeat("Real article prose. ", 30) + `</p>
			<p>A second paragraph with enough characters to pass the fragment filter.</p>
		</article>
	</body></html>`

	res := Extract(html)

	assert.NotContains(t, res.Content, "Navigation menu")
	assert.NotContains(t, res.Content, "script text")
	assert.NotContains(t, res.Content, "amazing product")
	assert.Contains(t, res.Content, "Real article prose.")
	assert.Contains(t, res.Content, "second paragraph")
}

func TestExtract_TitleSuffixStripped(t *testing.T) {
	html := `<html><head>
		<meta property="og:title" content="My Great Article | Example News">
	</head><body></body></html>`

	res := Extract(html)
	assert.Equal(t, "My Great Article", res.Title)
}

func TestExtract_TitleWithoutSeparatorUnchanged(t *testing.T) {
	html := `<html><head><title>Plain Title</title></head><body></body></html>`

	res := Extract(html)
	assert.Equal(t, "Plain Title", res.Title)
}

func TestExtract_TitlePriorityOrder(t *testing.T) {
	html := `<html><head>
		<title>Document Title</title>
		<meta name="twitter:title" content="Twitter Title">
		<meta property="og:title" content="OG Title">
	</head><body></body></html>`

	res := Extract(html)
	assert.Equal(t, "OG Title", res.Title)
}

func TestExtract_TitleFallsBackToHeading(t *testing.T) {
	html := `<html><head></head><body>
		<article><h1>Heading Title</h1><p>body text</p></article>
	</body></html>`

	res := Extract(html)
	assert.Equal(t, "Heading Title", res.Title)
}

func TestExtract_Metadata(t *testing.T) {
	html := `<html><head>
		<meta property="og:description" content="A fine description.">
		<meta property="og:image" content="https://example.com/thumb.jpg">
	</head><body></body></html>`

	res := Extract(html)
	assert.Equal(t, "A fine description.", res.Description)
	assert.Equal(t, "https://example.com/thumb.jpg", res.Image)
}

func TestExtract_HeadingsKeepStructure(t *testing.T) {
	html := `<html><body><article>
		<h2>Section Heading With Enough Characters</h2>
		<p>` + strings.Repeat("Paragraph text under the heading. ", 20) + `</p>
	</article></body></html>`

	res := Extract(html)
	assert.Contains(t, res.Content, "## Section Heading With Enough Characters")
}

func TestExtract_DropsShortAndUIFragments(t *testing.T) {
	html := `<html><body><article>
		<p>ok</p>
		<p>Subscribe</p>
		<p>` + strings.Repeat("Long enough paragraph content here. ", 20) + `</p>
	</article></body></html>`

	res := Extract(html)
	assert.NotContains(t, res.Content, "ok\n")
	assert.NotContains(t, strings.ToLower(res.Content), "subscribe")
}

func TestExtract_LowYieldSentenceFallback(t *testing.T) {
	html := `<html><body><p>Tiny page with one short line only.</p></body></html>`

	res := Extract(html)
	require.NotEmpty(t, res.Content)
	assert.Contains(t, res.Content, "Tiny page with one short line only.")
	assert.True(t, res.Failed(), "40-char page should still count as failed extraction")
}

func TestExtract_NeverPanicsOnGarbage(t *testing.T) {
	for _, input := range []string{"", "   ", "<<<>>>", "<html><body>", "not html at all"} {
		assert.NotPanics(t, func() { Extract(input) })
	}
}

func TestChunkSentences(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("This is a sentence of some length. ", 20))

	out := chunkSentences(text)
	require.NotEmpty(t, out)

	for _, chunk := range strings.Split(out, "\n\n") {
		assert.LessOrEqual(t, len(chunk), 2*sentenceChunkLen)
		assert.True(t, strings.HasSuffix(chunk, "."), "chunks end on sentence boundaries")
	}
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "hello world", StripTags("<b>hello</b> <i>world</i>"))
}
