// Package render turns markdown reports into sanitized HTML.
package render

import (
	"bytes"
	"html/template"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// ToHTML renders md as an HTML fragment. Raw HTML and scripts in the input
// are stripped by a user-generated-content policy.
func ToHTML(md string) string {
	// parsers keep state, so one per call
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	out := markdown.Render(doc, renderer)

	return string(policy.SanitizeBytes(out))
}

var policy = bluemonday.UGCPolicy().AddTargetBlankToFullyQualifiedLinks(true)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { max-width: 52rem; margin: 2rem auto; padding: 0 1rem; font-family: system-ui, sans-serif; line-height: 1.6; }
pre, code { background: #f4f4f4; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// Page renders md as a standalone HTML document.
func Page(title, md string) (string, error) {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(ToHTML(md)),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
