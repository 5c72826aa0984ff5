package content

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var markupPattern = regexp.MustCompile(`(?i)<\s*(html|body|div|p|br|a|img|table|span|font|b|strong|script|form)\b`)

type extracted struct {
	text   string
	links  int
	images int
	unsafe bool
	isHTML bool
}

func looksLikeHTML(s string) bool {
	return markupPattern.MatchString(s)
}

// extract returns the visible text of a message body. Markup is parsed with
// goquery; anything that fails to parse is treated as plain text.
func extract(body string) extracted {
	if !looksLikeHTML(body) {
		return extracted{text: body, links: countPlainLinks(body)}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return extracted{text: body, links: countPlainLinks(body)}
	}

	out := extracted{isHTML: true}
	out.unsafe = doc.Find("script, form").Length() > 0
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, _ := s.Attr("href"); strings.TrimSpace(href) != "" && !strings.HasPrefix(href, "#") {
			out.links++
		}
	})
	out.images = doc.Find("img").Length()

	doc.Find("script, style, head").Remove()
	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	out.text = strings.Join(strings.Fields(text), " ")
	return out
}

var plainLinkPattern = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+`)

func countPlainLinks(text string) int {
	return len(plainLinkPattern.FindAllStringIndex(text, -1))
}
