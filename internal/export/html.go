package export

import (
	"bytes"
	"html/template"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/aatumaykin/nexarchive/internal/history"
)

// The layout follows the Telegram Desktop HTML export, so an exported chat
// can be read back by source.TDExport.
const htmlLayout = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}} - Telegram Export</title>
<style>
body { margin: 0; font: 14px -apple-system, "Segoe UI", Roboto, sans-serif; background: #e7ebf0; color: #000; }
.page_wrap { max-width: 720px; margin: 0 auto; background: #fff; }
.page_header { padding: 12px 20px; border-bottom: 1px solid #e3e6e8; }
.page_header .text { font-size: 18px; font-weight: 700; }
.meta { color: #70777b; padding: 8px 20px; margin: 0; }
.message { padding: 6px 20px; }
.message.service { text-align: center; color: #70777b; }
.pull_right { float: right; }
.details { color: #70777b; font-size: 12px; }
.from_name { color: #3892db; font-weight: 700; }
.reply_to { border-left: 2px solid #3892db; padding-left: 6px; }
.clearfix::after { content: ""; display: table; clear: both; }
</style>
</head>
<body>
<div class="page_wrap">
 <div class="page_header"><div class="content"><div class="text bold">{{.Title}}</div></div></div>
 <p class="meta">Exported: {{.Exported}} | Messages: {{.Count}}</p>
 <div class="page_body chat_page"><div class="history">
{{- range .Items}}
{{- if .Day}}
  <div class="message service" id="message-{{.DayIndex}}"><div class="body details">{{.Day}}</div></div>
{{- end}}
  <div class="message default clearfix" id="message{{.ID}}">
   <div class="body">
    <div class="pull_right date details" title="{{.DateTitle}}">{{.Time}}</div>
    <div class="from_name">{{.Sender}}</div>
{{- if .ReplyTo}}
    <div class="reply_to details">In reply to <a href="#go_to_message{{.ReplyTo}}">this message</a></div>
{{- end}}
{{- if .MediaClass}}
    <div class="media_wrap clearfix"><a class="{{.MediaClass}} clearfix pull_left" href="{{.MediaPath}}">{{.MediaLabel}}</a></div>
{{- end}}
{{- if .Body}}
    <div class="text">{{.Body}}</div>
{{- end}}
   </div>
  </div>
{{- end}}
 </div></div>
</div>
</body>
</html>
`

var mediaAnchor = map[history.MediaKind]string{
	history.MediaPhoto:    "photo_wrap",
	history.MediaVideo:    "video_file_wrap",
	history.MediaVoice:    "media_voice_message",
	history.MediaSticker:  "sticker_wrap",
	history.MediaDocument: "media_file",
}

type htmlPage struct {
	Title    string
	Exported string
	Count    int
	Items    []htmlItem
}

type htmlItem struct {
	ID         int64
	Day        string
	DayIndex   int
	DateTitle  string
	Time       string
	Sender     string
	ReplyTo    int64
	MediaClass string
	MediaPath  string
	MediaLabel string
	Body       template.HTML
}

// HTML renders a chat as a single Telegram Desktop style page.
type HTML struct {
	tmpl *template.Template
}

// NewHTML parses the page template.
func NewHTML() *HTML {
	return &HTML{tmpl: template.Must(template.New("chat").Parse(htmlLayout))}
}

func (*HTML) Extension() string { return ".html" }

func (h *HTML) Render(doc Document) ([]byte, error) {
	page := htmlPage{
		Title:    doc.Title,
		Exported: doc.Exported.Format("2006-01-02T15:04:05Z07:00"),
		Count:    len(doc.Messages),
		Items:    make([]htmlItem, 0, len(doc.Messages)),
	}

	var lastDay string
	days := 0
	for _, m := range doc.Messages {
		local := m.Date.In(doc.Location)
		item := htmlItem{
			ID:        m.ID,
			DateTitle: local.Format("02.01.2006 15:04:05 UTC-07:00"),
			Time:      local.Format("15:04"),
			Sender:    m.Sender(),
			ReplyTo:   m.ReplyTo,
			Body:      textToHTML(m.Text),
		}
		if day := local.Format("2 January 2006"); day != lastDay {
			days++
			item.Day, item.DayIndex, lastDay = day, days, day
		}
		if m.HasMedia() {
			item.MediaClass = mediaAnchor[m.Media.Kind]
			if item.MediaClass == "" {
				item.MediaClass = "media_file"
			}
			item.MediaPath = m.Media.Path
			item.MediaLabel = mediaLabel(m.Media)
		}
		page.Items = append(page.Items, item)
	}

	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, page); err != nil {
		return nil, errors.Wrap(err, "execute html template")
	}
	return buf.Bytes(), nil
}

// textToHTML escapes text and keeps line breaks.
func textToHTML(text string) template.HTML {
	if text == "" {
		return ""
	}
	escaped := template.HTMLEscapeString(text)
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
}

func mediaLabel(m *history.Media) string {
	label := string(m.Kind)
	if m.Path != "" {
		label = m.Path[strings.LastIndex(m.Path, "/")+1:]
	}
	if m.Size > 0 {
		label += " (" + strconv.FormatInt(m.Size/1024, 10) + " KB)"
	}
	return label
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
