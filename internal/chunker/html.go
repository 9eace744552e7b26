package chunker

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// preservedTags are emitted verbatim (with their attributes collapsed to
// href/src only); every other element is unwrapped to its text content.
var preservedTags = map[string]string{"a": "href", "img": "src"}

var whitespaceRun = regexp.MustCompile(`[ \t\r\n]+`)

// StripHTML strips tags from s, preserving <a href> and <img src>
// elements, decoding entities (handled by the tokenizer itself), and
// collapsing runs of whitespace to single spaces.
func StripHTML(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var out strings.Builder

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return whitespaceRun.ReplaceAllString(strings.TrimSpace(out.String()), " ")
		case html.TextToken:
			out.Write(z.Text())
			out.WriteByte(' ')
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			attrName, preserve := preservedTags[tok.Data]
			if !preserve {
				continue
			}
			out.WriteString("<")
			out.WriteString(tok.Data)
			for _, a := range tok.Attr {
				if a.Key == attrName {
					out.WriteString(" ")
					out.WriteString(a.Key)
					out.WriteString("=\"")
					out.WriteString(a.Val)
					out.WriteString("\"")
				}
			}
			out.WriteString(">")
		case html.EndTagToken:
			tok := z.Token()
			if _, preserve := preservedTags[tok.Data]; preserve {
				out.WriteString("</")
				out.WriteString(tok.Data)
				out.WriteString(">")
			}
		}
	}
}
