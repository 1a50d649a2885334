// Package digest reduces raw page markup to a small deterministic summary:
// an optional title, bounded plain text, and a bounded ordered link list.
// Malformed markup degrades to partial output; extraction never fails.
package digest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Options bounds the size of an extracted digest.
type Options struct {
	// MaxTextChars caps the length of the extracted body text.
	MaxTextChars int

	// MaxLinks caps how many hyperlinks are collected, in document order.
	MaxLinks int

	// MaxLinkTextChars caps each link's inner text.
	MaxLinkTextChars int
}

// DefaultOptions returns the stock digest bounds.
func DefaultOptions() Options {
	return Options{
		MaxTextChars:     20000,
		MaxLinks:         50,
		MaxLinkTextChars: 200,
	}
}

// Link is a hyperlink found in the markup.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Digest is the bounded summary of a markup document.
type Digest struct {
	Title *string `json:"title"`
	Text  string  `json:"text"`
	Links []Link  `json:"links"`
}

// Extract summarizes raw markup with the default bounds.
func Extract(markup string) Digest {
	return ExtractWithOptions(markup, DefaultOptions())
}

// ExtractWithOptions summarizes raw markup. Script and style contents never
// appear in the extracted text; entities are decoded; whitespace is collapsed.
func ExtractWithOptions(markup string, opts Options) Digest {
	if opts.MaxTextChars <= 0 {
		opts.MaxTextChars = DefaultOptions().MaxTextChars
	}
	if opts.MaxLinks <= 0 {
		opts.MaxLinks = DefaultOptions().MaxLinks
	}
	if opts.MaxLinkTextChars <= 0 {
		opts.MaxLinkTextChars = DefaultOptions().MaxLinkTextChars
	}

	d := Digest{
		Text:  truncateRunes(extractText(markup), opts.MaxTextChars),
		Links: []Link{},
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		// Unparseable input still yields whatever the tokenizer recovered.
		return d
	}

	if title := doc.Find("title").First(); title.Length() > 0 {
		normalized := normalizeSpace(title.Text())
		d.Title = &normalized
	}

	doc.Find("a[href]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if len(d.Links) >= opts.MaxLinks {
			return false
		}
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		d.Links = append(d.Links, Link{
			Text: truncateRunes(normalizeSpace(s.Text()), opts.MaxLinkTextChars),
			Href: strings.TrimSpace(href),
		})
		return true
	})

	return d
}

// extractText walks the token stream, skipping script and style contents,
// and returns the whitespace-collapsed remaining text. Entities are decoded
// by the tokenizer. A tokenizer error ends the walk with whatever was
// collected so far.
func extractText(markup string) string {
	tz := html.NewTokenizer(strings.NewReader(markup))

	var sb strings.Builder
	skipDepth := 0
	for {
		switch tz.Next() {
		case html.ErrorToken:
			return normalizeSpace(sb.String())
		case html.StartTagToken:
			name, _ := tz.TagName()
			if isRawTextContainer(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tz.TagName()
			if isRawTextContainer(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(tz.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

func isRawTextContainer(tag string) bool {
	return tag == "script" || tag == "style"
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
