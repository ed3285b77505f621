package notify

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText strips tags from an HTML fragment and unescapes entities, for the
// plain body that accompanies a formatted message.
func PlainText(fragment string) string {
	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(tokenizer.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			if name, _ := tokenizer.TagName(); string(name) == "br" {
				b.WriteByte('\n')
			}
		}
	}
}
