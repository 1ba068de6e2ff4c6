// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/gingfrederik/docx"

	"github.com/pdiddy/trendlab/pkg/types"
)

// DOCX writes report as a Word document to path.
func DOCX(path string, report types.Report, generated time.Time) error {
	f := docx.NewFile()

	title := strings.TrimSpace(report.Title)
	if title == "" {
		title = "Trend Report"
	}
	f.AddParagraph().AddText(title).Size(20)
	f.AddParagraph().AddText("Generated " + generated.UTC().Format("2006-01-02 15:04 MST")).Size(9)
	f.AddParagraph()

	for _, s := range report.Sections() {
		f.AddParagraph().AddText(s.Heading).Size(14)
		for _, para := range paragraphs(string(s.Body)) {
			f.AddParagraph().AddText(para)
		}
		f.AddParagraph()
	}

	if len(report.Footnotes) > 0 {
		f.AddParagraph().AddText("References").Size(14)
		for _, fn := range report.Footnotes {
			line := fmt.Sprintf("[%d] %s", fn.Number, fn.SourceName)
			if fn.SourceURL != "" {
				line += ", " + fn.SourceURL
			}
			if fn.Context != "" {
				line += " (" + fn.Context + ")"
			}
			f.AddParagraph().AddText(line).Size(9)
		}
		f.AddParagraph()
	}

	if len(report.Sources) > 0 {
		f.AddParagraph().AddText("Sources").Size(14)
		for _, s := range report.Sources {
			line := "- " + s.Name
			if s.URL != "" {
				line += ": " + s.URL
			}
			f.AddParagraph().AddText(line).Size(9)
		}
	}

	if err := f.Save(path); err != nil {
		return fmt.Errorf("saving docx: %w", err)
	}
	return nil
}

// paragraphs splits text on blank lines, dropping empty pieces.
func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
