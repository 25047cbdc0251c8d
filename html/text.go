package html

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Elements that start on a new line in the text rendition.
var blockElements = map[atom.Atom]struct{}{
	atom.Address: {}, atom.Article: {}, atom.Blockquote: {}, atom.Div: {},
	atom.Dl: {}, atom.Dt: {}, atom.Dd: {}, atom.Footer: {}, atom.Form: {},
	atom.H1: {}, atom.H2: {}, atom.H3: {}, atom.H4: {}, atom.H5: {},
	atom.H6: {}, atom.Header: {}, atom.Hr: {}, atom.Li: {}, atom.Main: {},
	atom.Nav: {}, atom.Ol: {}, atom.P: {}, atom.Pre: {}, atom.Section: {},
	atom.Table: {}, atom.Tr: {}, atom.Ul: {},
}

// Elements whose content never shows up in the text rendition.
var skippedElements = map[atom.Atom]struct{}{
	atom.Head: {}, atom.Script: {}, atom.Style: {}, atom.Title: {},
}

// textWriter accumulates words and line breaks, collapsing runs of
// whitespace the way a browser would.
type textWriter struct {
	b       strings.Builder
	pending string // separator owed before the next word
}

func (w *textWriter) word(s string) {
	if w.b.Len() > 0 {
		w.b.WriteString(w.pending)
	}
	w.pending = ""
	w.b.WriteString(s)
}

func (w *textWriter) space() {
	if w.pending == "" {
		w.pending = " "
	}
}

func (w *textWriter) lines(n int) {
	if len(w.pending) < n || w.pending == " " {
		w.pending = strings.Repeat("\n", n)
	}
}

// ToText renders an HTML document as plain text. Block elements start new
// lines, paragraphs and headings are separated by a blank line, list items
// get a "- " prefix, and link targets follow the link text in parentheses
// unless the text already is the target.
func ToText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	w := &textWriter{}

	var (
		skip     int
		href     string
		linkText strings.Builder
		inLink   bool
	)

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return strings.TrimSpace(w.b.String()), nil
			}
			return "", z.Err()

		case html.StartTagToken, html.SelfClosingTagToken:
			t := z.Token()
			if _, ok := skippedElements[t.DataAtom]; ok && tt == html.StartTagToken {
				skip++
				continue
			}
			switch t.DataAtom {
			case atom.Br:
				w.lines(1)
			case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				w.lines(2)
			case atom.Li:
				w.lines(1)
				w.word("-")
				w.space()
			case atom.A:
				inLink = true
				linkText.Reset()
				href = ""
				for _, a := range t.Attr {
					if a.Key == "href" {
						href = a.Val
					}
				}
			case atom.Td, atom.Th:
				w.space()
			default:
				if _, ok := blockElements[t.DataAtom]; ok {
					w.lines(1)
				}
			}

		case html.EndTagToken:
			t := z.Token()
			if _, ok := skippedElements[t.DataAtom]; ok {
				if skip > 0 {
					skip--
				}
				continue
			}
			switch t.DataAtom {
			case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				w.lines(2)
			case atom.A:
				if inLink && href != "" && href != strings.TrimSpace(linkText.String()) &&
					!strings.HasPrefix(href, "#") {
					w.space()
					w.word("(" + href + ")")
				}
				inLink = false
			default:
				if _, ok := blockElements[t.DataAtom]; ok {
					w.lines(1)
				}
			}

		case html.TextToken:
			if skip > 0 {
				continue
			}
			text := string(z.Text())
			if text != "" && isSpace(text[0]) {
				w.space()
			}
			for _, f := range strings.Fields(text) {
				w.word(f)
				w.space()
				if inLink {
					linkText.WriteString(f + " ")
				}
			}
			if text != "" && !isSpace(text[len(text)-1]) {
				// The next token continues this word, e.g. "<b>a</b>b".
				w.pending = ""
			}
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
