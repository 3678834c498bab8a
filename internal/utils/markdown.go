package utils

import (
	"bytes"
	"html/template"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// markdownRenderer 留言与公告共用，goldmark 不输出原始 HTML，再由 bluemonday 兜底
type markdownRenderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

var (
	rendererOnce sync.Once
	renderer     *markdownRenderer
)

func getRenderer() *markdownRenderer {
	rendererOnce.Do(func() {
		policy := bluemonday.UGCPolicy()
		policy.AllowImages()
		policy.AllowURLSchemes("http", "https", "mailto")
		policy.AddTargetBlankToFullyQualifiedLinks(true)

		renderer = &markdownRenderer{
			md: goldmark.New(
				goldmark.WithExtensions(extension.GFM),
				goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
			),
			policy: policy,
		}
	})
	return renderer
}

// RenderMarkdown 把 md 正文渲染成可直接输出的 HTML，失败时退回转义后的原文
func RenderMarkdown(source string) template.HTML {
	if strings.TrimSpace(source) == "" {
		return ""
	}
	return getRenderer().render(source)
}

func (r *markdownRenderer) render(source string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(source))
	}
	clean := r.policy.SanitizeBytes(buf.Bytes())
	out, err := hardenHTML(clean)
	if err != nil {
		return template.HTML(clean)
	}
	return template.HTML(out)
}
