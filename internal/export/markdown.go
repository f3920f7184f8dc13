package export

import (
	"html"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/aatumaykin/nexarchive/internal/history"
	"github.com/aatumaykin/nexarchive/internal/logger"
)

// Markdown renders a chat as one Markdown document grouped by day.
type Markdown struct {
	converter *md.Converter
	logger    *logger.Logger
}

// NewMarkdown creates the renderer. Formatted message bodies are converted
// with html-to-markdown, plain text goes through the same converter so that
// markdown characters get escaped.
func NewMarkdown(log *logger.Logger) *Markdown {
	if log == nil {
		log = logger.Nop()
	}
	opts := &md.Options{
		HeadingStyle:    "atx",
		CodeBlockStyle:  "fenced",
		EmDelimiter:     "*",
		StrongDelimiter: "**",
	}
	converter := md.NewConverter("", true, opts)
	converter.AddRules(md.Rule{
		Filter: []string{"script", "style"},
		Replacement: func(_ string, _ *goquery.Selection, _ *md.Options) *string {
			return md.String("")
		},
	})
	return &Markdown{converter: converter, logger: log.Component("markdown_export")}
}

func (*Markdown) Extension() string { return ".md" }

func (r *Markdown) Render(doc Document) ([]byte, error) {
	var b strings.Builder
	b.WriteString("# " + doc.Title + "\n\n")
	b.WriteString("*Exported: " + doc.Exported.Format("2006-01-02T15:04:05Z07:00") +
		" | Messages: " + formatID(int64(len(doc.Messages))) + "*\n\n")
	b.WriteString("---\n")

	var lastDay string
	for _, m := range doc.Messages {
		local := m.Date.In(doc.Location)
		if day := local.Format("2006-01-02"); day != lastDay {
			b.WriteString("\n## " + day + "\n\n")
			lastDay = day
		}

		b.WriteString("**" + local.Format("15:04") + "** " + m.Sender() + ":")
		if body := r.body(m); body != "" {
			b.WriteString(" " + body)
		}
		b.WriteString("\n")

		if m.ReplyTo != 0 {
			b.WriteString("> *Reply to message #" + formatID(m.ReplyTo) + "*\n")
		}
		if m.HasMedia() {
			b.WriteString(mediaLink(m.Media) + "\n")
		}
		b.WriteString("\n")
	}
	return []byte(b.String()), nil
}

func (r *Markdown) body(m history.Message) string {
	src := m.HTML
	if src == "" {
		if m.Text == "" {
			return ""
		}
		src = strings.ReplaceAll(html.EscapeString(m.Text), "\n", "<br>")
	}
	out, err := r.converter.ConvertString(src)
	if err != nil {
		r.logger.Warn("failed to convert message body",
			logger.Field{Key: "message_id", Value: m.ID},
			logger.Field{Key: "error", Value: err.Error()})
		return m.Text
	}
	return strings.TrimSpace(out)
}

func mediaLink(m *history.Media) string {
	if m.Path == "" {
		return "*[" + string(m.Kind) + "]*"
	}
	switch {
	case m.Kind == history.MediaPhoto || strings.HasPrefix(m.Mime, "image/"):
		return "![Image](" + m.Path + ")"
	case m.Kind == history.MediaVideo || strings.HasPrefix(m.Mime, "video/"):
		return "[Video: " + m.Path + "](" + m.Path + ")"
	default:
		return "[File: " + m.Path + "](" + m.Path + ")"
	}
}
