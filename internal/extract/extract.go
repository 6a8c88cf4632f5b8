// Package extract turns raw page HTML into a best-effort readable article.
// Websites have no common structure, so everything here is heuristic: the
// pipeline strips known boilerplate, walks a selector priority list to find
// the main content node, and degrades to flattened text when structured
// extraction yields too little. Extract never fails; the worst case is a
// near-empty result the caller treats as "extraction failed".
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// Result holds the extracted article fields. Any of them may be empty.
type Result struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Content     string `json:"content"`
}

const (
	// minContentNodeLen is the visible-text threshold a candidate content
	// node must clear before it is accepted.
	minContentNodeLen = 250
	// minFragmentLen filters nav/UI noise out of the assembled text.
	minFragmentLen = 30
	// lowYieldLen triggers the flattened-text fallback when structured
	// assembly produced less than this.
	lowYieldLen = 500
	// sentenceChunkLen is the target chunk size for the fallback path.
	sentenceChunkLen = 200
	// FailedContentLen is the threshold below which callers should treat
	// the extraction as failed and offer manual entry.
	FailedContentLen = 100
)

// boilerplateSelectors are removed before content selection so they can
// never be picked as the content node or leak text into the assembly.
var boilerplateSelectors = []string{
	"script", "style", "noscript", "iframe", "svg", "form", "button", "select",
	"nav", "header", "footer", "aside",
	"[class*='nav']", "[class*='menu']", "[class*='sidebar']",
	"[class*='ad-']", "[class*='ads']", "[class*='advert']", "[id*='ad-']",
	"[class*='social']", "[class*='share']",
	"[class*='comment']", "[id*='comment']",
	"[class*='cookie']", "[class*='banner']", "[class*='consent']",
	"[class*='newsletter']", "[class*='subscribe']",
	"[class*='popup']", "[class*='modal']",
	"[class*='related']", "[class*='pagination']", "[class*='breadcrumb']",
}

// contentSelectors is the priority order for locating the article body,
// most specific first.
var contentSelectors = []string{
	"article[role='main']",
	"[role='article']",
	".post-content",
	".article-content",
	".article-body",
	".entry-content",
	".post-body",
	".story-body",
	".story-content",
	"#article-body",
	"article",
	"main",
	".content",
	"#content",
	"body",
}

// uiPhrases are whole fragments that are navigation chrome, not prose.
var uiPhrases = []string{
	"share", "share this", "subscribe", "sign up", "sign in", "log in",
	"advertisement", "sponsored", "read more", "related articles",
	"follow us", "newsletter", "accept cookies", "skip to content",
}

// titleSuffixRe matches a trailing "| SiteName" / "— SiteName" style suffix:
// a dash or pipe separator followed by separator-free text at end of string.
var titleSuffixRe = regexp.MustCompile(`\s*[|\-–—]\s*[^|\-–—]+$`)

var stripPolicy = bluemonday.StrictPolicy()

// Extract produces the readable article fields for the given HTML. It is a
// pure function of its input and never returns an error: unparseable or
// empty input yields a zero Result.
func Extract(html string) Result {
	var res Result

	trimmed := strings.TrimSpace(html)
	if trimmed == "" {
		return res
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err != nil {
		return res
	}

	// Metadata comes off the intact document; the denylist pass below
	// removes meta tags' neighbors and must not run first for titles
	// living in headers.
	res.Title = resolveTitle(doc)
	res.Description = firstMetaContent(doc,
		"meta[property='og:description']",
		"meta[name='description']",
		"meta[name='twitter:description']",
	)
	res.Image = firstMetaContent(doc,
		"meta[property='og:image']",
		"meta[name='twitter:image']",
		"meta[name='twitter:image:src']",
	)

	for _, sel := range boilerplateSelectors {
		doc.Find(sel).Remove()
	}

	node := selectContentNode(doc)
	if node == nil {
		return res
	}

	content := assembleText(node)
	if len(content) < lowYieldLen {
		// Trade structure for volume: flatten the node and re-chunk at
		// sentence boundaries.
		if flat := chunkSentences(collapseWhitespace(node.Text())); len(flat) > len(content) {
			content = flat
		}
	}
	res.Content = content

	return res
}

// Failed reports whether the extraction should be treated as unusable,
// prompting manual entry.
func (r Result) Failed() bool {
	return len(r.Content) < FailedContentLen
}

func resolveTitle(doc *goquery.Document) string {
	title := firstMetaContent(doc,
		"meta[property='og:title']",
		"meta[name='twitter:title']",
	)
	if title == "" {
		title = strings.TrimSpace(doc.Find("article h1, main h1, .post h1").First().Text())
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	title = collapseWhitespace(title)

	// "My Great Article | Example News" -> "My Great Article", but only
	// when something is left over after stripping.
	if stripped := titleSuffixRe.ReplaceAllString(title, ""); stripped != "" {
		title = stripped
	}

	return strings.TrimSpace(title)
}

func firstMetaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if c := strings.TrimSpace(content); c != "" {
				return c
			}
		}
	}
	return ""
}

func selectContentNode(doc *goquery.Document) *goquery.Selection {
	for _, sel := range contentSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if len(collapseWhitespace(node.Text())) >= minContentNodeLen {
			return node
		}
	}
	if body := doc.Find("body").First(); body.Length() > 0 {
		return body
	}
	return nil
}

func assembleText(node *goquery.Selection) string {
	var fragments []string

	node.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, td").Each(func(_ int, s *goquery.Selection) {
		text := collapseWhitespace(s.Text())
		if len(text) < minFragmentLen {
			return
		}
		if isUIPhrase(text) {
			return
		}
		if name := goquery.NodeName(s); len(name) == 2 && name[0] == 'h' {
			text = "## " + text
		}
		fragments = append(fragments, text)
	})

	return strings.Join(fragments, "\n\n")
}

func isUIPhrase(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, phrase := range uiPhrases {
		if lower == phrase {
			return true
		}
	}
	return false
}

// chunkSentences splits flattened text into sentence-bounded chunks of
// roughly sentenceChunkLen characters joined by blank lines.
func chunkSentences(text string) string {
	if text == "" {
		return ""
	}

	var chunks []string
	var cur strings.Builder

	for _, sentence := range splitSentences(text) {
		if cur.Len() > 0 && cur.Len()+len(sentence) > sentenceChunkLen {
			chunks = append(chunks, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		cur.WriteString(sentence)
		cur.WriteByte(' ')
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		chunks = append(chunks, s)
	}

	return strings.Join(chunks, "\n\n")
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			end := i + 1
			if s := strings.TrimSpace(text[start:end]); s != "" {
				sentences = append(sentences, s)
			}
			start = end
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// StripTags removes all markup from a string. Used when a caller has HTML
// fragments but no document to walk.
func StripTags(html string) string {
	return collapseWhitespace(stripPolicy.Sanitize(html))
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
