// Package export renders archived chats to HTML and Markdown files.
package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/history"
	"github.com/aatumaykin/nexarchive/internal/logger"
)

// ErrNothingToExport is returned when the chat has no archived messages.
var ErrNothingToExport = errors.New("no archived messages to export")

// Archive is the read side of the archive sink.
type Archive interface {
	AlreadyArchived(ctx context.Context, chatID int64) ([]history.Message, error)
}

// Document is what a renderer gets: the chat and its messages, oldest first.
type Document struct {
	ChatID   int64
	Title    string
	Messages []history.Message
	Exported time.Time
	Location *time.Location
}

// Renderer writes one output format.
type Renderer interface {
	Extension() string
	Render(doc Document) ([]byte, error)
}

// Options configures an Exporter.
type Options struct {
	// Location is used for dates shown in exports. nil means time.Local.
	Location *time.Location
	Now      func() time.Time
	Logger   *logger.Logger
}

// Exporter implements archive.Exporter on top of the archive sink.
type Exporter struct {
	archive  Archive
	html     Renderer
	markdown Renderer
	location *time.Location
	now      func() time.Time
	logger   *logger.Logger
}

// New creates an Exporter reading messages from a.
func New(a Archive, opts Options) *Exporter {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Exporter{
		archive:  a,
		html:     NewHTML(),
		markdown: NewMarkdown(opts.Logger),
		location: opts.Location,
		now:      opts.Now,
		logger:   opts.Logger.Component("exporter"),
	}
}

// Export writes the chat in format to path and returns the written files.
// The extension of each format is appended when path lacks it; for "both"
// a known extension on path is replaced.
func (e *Exporter) Export(ctx context.Context, title string, chatID int64, format archive.ExportFormat, path string) ([]string, error) {
	if path == "" {
		return nil, errors.New("export path is empty")
	}

	var renderers []Renderer
	switch format {
	case archive.ExportHTML, "":
		renderers = []Renderer{e.html}
	case archive.ExportMarkdown:
		renderers = []Renderer{e.markdown}
	case archive.ExportBoth:
		renderers = []Renderer{e.html, e.markdown}
		path = trimKnownExt(path)
	default:
		return nil, errors.Newf("unknown export format %q", format)
	}

	msgs, err := e.archive.AlreadyArchived(ctx, chatID)
	if err != nil {
		return nil, errors.Wrapf(err, "load archived messages of chat %d", chatID)
	}
	if len(msgs) == 0 {
		return nil, errors.Wrapf(ErrNothingToExport, "chat %d", chatID)
	}
	if title == "" {
		title = DefaultTitle(chatID)
	}

	doc := Document{
		ChatID:   chatID,
		Title:    title,
		Messages: msgs,
		Exported: e.now().In(e.location),
		Location: e.location,
	}

	paths := make([]string, 0, len(renderers))
	for _, r := range renderers {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		out := withExt(path, r.Extension())
		data, err := r.Render(doc)
		if err != nil {
			return paths, errors.Wrapf(err, "render %s", out)
		}
		if err := writeFile(out, data); err != nil {
			return paths, err
		}
		paths = append(paths, out)

		e.logger.Info("chat exported",
			logger.Field{Key: "chat_id", Value: chatID},
			logger.Field{Key: "path", Value: out},
			logger.Field{Key: "messages", Value: len(msgs)})
	}
	return paths, nil
}

// DefaultTitle is used for chats without a known title.
func DefaultTitle(chatID int64) string {
	return "Chat " + formatID(chatID)
}

func withExt(path, ext string) string {
	if strings.EqualFold(filepath.Ext(path), ext) {
		return path
	}
	return path + ext
}

func trimKnownExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".md":
		return strings.TrimSuffix(path, filepath.Ext(path))
	}
	return path
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create export directory for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}
