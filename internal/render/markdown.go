// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/pdiddy/trendlab/pkg/types"
)

var markdownTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"trim": func(p types.Prose) string { return strings.TrimSpace(string(p)) },
}).Parse(`# {{.Title}}

*Generated {{.Generated}}*
{{range .Sections}}
## {{.Heading}}

{{trim .Body}}
{{end}}{{if .Footnotes}}
## References
{{range .Footnotes}}
- [{{.Number}}] {{.SourceName}}{{if .SourceURL}}, <{{.SourceURL}}>{{end}}{{if .Context}} ({{.Context}}){{end}}{{end}}
{{end}}{{if .Sources}}
## Sources
{{range .Sources}}
- {{.Name}}{{if .URL}}: <{{.URL}}>{{end}}{{end}}
{{end}}`))

// Markdown renders report as a Markdown document.
func Markdown(report types.Report, generated time.Time) ([]byte, error) {
	title := strings.TrimSpace(report.Title)
	if title == "" {
		title = "Trend Report"
	}
	var buf bytes.Buffer
	err := markdownTmpl.Execute(&buf, struct {
		Title     string
		Generated string
		Sections  []types.Section
		Footnotes []types.Footnote
		Sources   []types.ReportSource
	}{
		Title:     title,
		Generated: generated.UTC().Format("2006-01-02 15:04 MST"),
		Sections:  report.Sections(),
		Footnotes: report.Footnotes,
		Sources:   report.Sources,
	})
	if err != nil {
		return nil, fmt.Errorf("executing markdown template: %w", err)
	}
	return buf.Bytes(), nil
}

// HTML renders report as a complete HTML page converted from its Markdown
// form.
func HTML(report types.Report, generated time.Time) ([]byte, error) {
	md, err := Markdown(report, generated)
	if err != nil {
		return nil, err
	}
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := html.NewRenderer(html.RendererOptions{
		Title: report.Title,
		Flags: html.CommonFlags | html.CompletePage | html.HrefTargetBlank,
	})
	return markdown.ToHTML(md, p, r), nil
}
