package utils

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// hardenHTML 处理已清洗的片段：外链 nofollow，图片懒加载且不带 referrer，
// 非 http(s) 的图片直接去掉
func hardenHTML(fragment []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(fragment))
	if err != nil {
		return "", err
	}
	body := doc.Find("body")

	body.Find("img").Each(func(_ int, s *goquery.Selection) {
		if !isHTTPURL(s.AttrOr("src", "")) {
			s.Remove()
			return
		}
		s.SetAttr("loading", "lazy")
		s.SetAttr("referrerpolicy", "no-referrer")
	})

	body.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		s.SetAttr("rel", "nofollow noopener noreferrer")
	})

	return body.Html()
}

func isHTTPURL(raw string) bool {
	lower := strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}
