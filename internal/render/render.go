// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package render writes final trend reports to disk. Each configured format
// produces <output_dir>/trend_report_<job_id>.<ext>; the path of the first
// format is the job's result handle.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/trendlab/pkg/types"
)

// Renderer turns a report into a stored artifact and returns its handle.
type Renderer interface {
	Render(ctx context.Context, jobID string, report types.Report) (string, error)
}

// writeFunc writes one format of report to path.
type writeFunc func(path string, report types.Report, generated time.Time) error

var writers = map[types.RenderFormat]writeFunc{
	types.FormatMarkdown: writeFile(Markdown),
	types.FormatHTML:     writeFile(HTML),
	types.FormatDOCX:     DOCX,
}

var extensions = map[types.RenderFormat]string{
	types.FormatMarkdown: "md",
	types.FormatHTML:     "html",
	types.FormatDOCX:     "docx",
}

// Files renders reports into a directory in one or more formats.
type Files struct {
	dir     string
	formats []types.RenderFormat
	log     *zap.Logger
	now     func() time.Time
}

// Option configures Files.
type Option func(*Files)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(f *Files) { f.log = log }
}

// WithClock overrides the generation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(f *Files) { f.now = now }
}

// New returns a renderer for cfg. It fails on an empty format list or an
// unknown format.
func New(cfg types.RenderConfig, opts ...Option) (*Files, error) {
	if len(cfg.Formats) == 0 {
		return nil, fmt.Errorf("render: no output formats configured")
	}
	for _, format := range cfg.Formats {
		if _, ok := writers[format]; !ok {
			return nil, fmt.Errorf("render: unknown format %q", format)
		}
	}
	f := &Files{
		dir:     cfg.OutputDir,
		formats: append([]types.RenderFormat(nil), cfg.Formats...),
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	if f.log == nil {
		f.log = zap.NewNop()
	}
	return f, nil
}

// Render writes every configured format and returns the first path.
func (f *Files) Render(ctx context.Context, jobID string, report types.Report) (string, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	generated := f.now()
	var handle string
	for _, format := range f.formats {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		path := Path(f.dir, jobID, format)
		if err := writers[format](path, report, generated); err != nil {
			return "", fmt.Errorf("rendering %s report: %w", format, err)
		}
		f.log.Info("render: wrote report",
			zap.String("job_id", jobID), zap.String("format", string(format)), zap.String("path", path))
		if handle == "" {
			handle = path
		}
	}
	return handle, nil
}

// Path returns the output path of jobID's report in format.
func Path(dir, jobID string, format types.RenderFormat) string {
	return filepath.Join(dir, fmt.Sprintf("trend_report_%s.%s", jobID, extensions[format]))
}

func writeFile(encode func(types.Report, time.Time) ([]byte, error)) writeFunc {
	return func(path string, report types.Report, generated time.Time) error {
		data, err := encode(report, generated)
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	}
}
