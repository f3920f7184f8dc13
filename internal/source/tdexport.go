package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"github.com/wasilibs/go-re2"

	"github.com/aatumaykin/nexarchive/internal/history"
	"github.com/aatumaykin/nexarchive/internal/logger"
)

var (
	reMessageID = re2.MustCompile(`^message(\d+)$`)
	reReplyTo   = re2.MustCompile(`go_to_message(\d+)`)
	reDateTitle = re2.MustCompile(`^(\d{2})\.(\d{2})\.(\d{4}) (\d{2}):(\d{2})(?::(\d{2}))?(?: UTC([+-])(\d{2}):(\d{2}))?$`)
	rePageFile  = re2.MustCompile(`^messages(\d*)\.html$`)
)

// mediaClasses maps Telegram Desktop export anchors to media kinds.
var mediaClasses = []struct {
	selector string
	kind     history.MediaKind
}{
	{"a.photo_wrap", history.MediaPhoto},
	{"a.video_file_wrap", history.MediaVideo},
	{"a.media_voice_message", history.MediaVoice},
	{"a.sticker_wrap", history.MediaSticker},
	{"a.media_file", history.MediaDocument},
}

// TDExport reads chat histories exported by Telegram Desktop in HTML form.
// Each chat lives in <root>/<chat_id>/messages.html, messages2.html, ...
// Parsed chats are cached in memory.
type TDExport struct {
	root     string
	location *time.Location
	logger   *logger.Logger

	mu    sync.Mutex
	chats map[int64]*tdChat
}

type tdChat struct {
	title    string
	messages []history.Message // newest first
}

// NewTDExport creates a reader over root. Dates without an explicit UTC
// offset are interpreted in loc (nil means time.Local).
func NewTDExport(root string, loc *time.Location, log *logger.Logger) *TDExport {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TDExport{
		root:     root,
		location: loc,
		logger:   log.Component("tdexport_source"),
		chats:    make(map[int64]*tdChat),
	}
}

func (s *TDExport) ChatInfo(ctx context.Context, chatID int64) (history.ChatInfo, error) {
	chat, err := s.load(ctx, chatID)
	if err != nil {
		return history.ChatInfo{ID: chatID}, err
	}
	return history.ChatInfo{ID: chatID, Title: chat.title, MessageCount: len(chat.messages)}, nil
}

func (s *TDExport) NextUnprocessedPage(ctx context.Context, chatID, cursor int64, limit int) ([]history.Message, int64, error) {
	chat, err := s.load(ctx, chatID)
	if err != nil {
		return nil, cursor, err
	}
	out, next := page(chat.messages, cursor, limit)
	return out, next, nil
}

// Reload drops the cached copy of a chat so the next call re-reads the files.
func (s *TDExport) Reload(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, chatID)
}

func (s *TDExport) load(ctx context.Context, chatID int64) (*tdChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chat, ok := s.chats[chatID]; ok {
		return chat, nil
	}

	dir := filepath.Join(s.root, strconv.FormatInt(chatID, 10))
	files, err := pageFiles(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list export pages of chat %d", chatID)
	}
	if len(files) == 0 {
		return nil, errors.Newf("no messages*.html in %s", dir)
	}

	chat := &tdChat{}
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		title, msgs, err := s.parseFile(filepath.Join(dir, name), chatID)
		if err != nil {
			return nil, err
		}
		if chat.title == "" {
			chat.title = title
		}
		chat.messages = append(chat.messages, msgs...)
	}
	sortNewestFirst(chat.messages)
	chat.messages = dedupe(chat.messages)

	s.logger.Info("telegram export loaded",
		logger.Field{Key: "chat_id", Value: chatID},
		logger.Field{Key: "pages", Value: len(files)},
		logger.Field{Key: "messages", Value: len(chat.messages)})

	s.chats[chatID] = chat
	return chat, nil
}

// pageFiles lists messages.html, messages2.html, ... in page order.
func pageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type pageFile struct {
		name string
		n    int
	}
	var pages []pageFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := rePageFile.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n := 1
		if m[1] != "" {
			n, _ = strconv.Atoi(m[1])
		}
		pages = append(pages, pageFile{name: e.Name(), n: n})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })

	names := make([]string, len(pages))
	for i, p := range pages {
		names[i] = p.name
	}
	return names, nil
}

func (s *TDExport) parseFile(path string, chatID int64) (string, []history.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, errors.Wrap(err, "open export page")
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", nil, errors.Wrapf(err, "parse %s", filepath.Base(path))
	}

	title := strings.TrimSpace(doc.Find(".page_header .content .text").First().Text())
	dir := filepath.Dir(path)

	var (
		msgs       []history.Message
		lastSender string
	)
	doc.Find(".history .message").Each(func(_ int, sel *goquery.Selection) {
		if sel.HasClass("service") {
			lastSender = ""
			return
		}
		id, ok := parseMessageID(sel.AttrOr("id", ""))
		if !ok {
			return
		}
		body := sel.Find(".body").First()

		msg := history.Message{ID: id, ChatID: chatID, Type: "text"}

		if from := strings.TrimSpace(body.ChildrenFiltered(".from_name").First().Text()); from != "" {
			lastSender = from
		}
		msg.FirstName = lastSender

		if d, ok := s.parseDate(body.Find(".date").First().AttrOr("title", "")); ok {
			msg.Date = d
		} else {
			s.logger.Debug("export message without parsable date",
				logger.Field{Key: "chat_id", Value: chatID},
				logger.Field{Key: "message_id", Value: id})
		}

		if href, ok := body.Find(".reply_to a").First().Attr("href"); ok {
			if m := reReplyTo.FindStringSubmatch(href); m != nil {
				msg.ReplyTo, _ = strconv.ParseInt(m[1], 10, 64)
			}
		}

		if text := body.ChildrenFiltered(".text").First(); text.Length() > 0 {
			msg.Text = strings.TrimSpace(textWithBreaks(text))
			if h, err := text.Html(); err == nil {
				msg.HTML = strings.TrimSpace(h)
			}
		}

		if media := parseMedia(body, dir); media != nil {
			msg.Media = media
			msg.Type = string(media.Kind)
		}

		msgs = append(msgs, msg)
	})

	return title, msgs, nil
}

func parseMessageID(attr string) (int64, bool) {
	m := reMessageID.FindStringSubmatch(attr)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	return id, err == nil && id > 0
}

// parseDate reads the title attribute of a date element, e.g.
// "10.03.2026 14:05:09 UTC+03:00".
func (s *TDExport) parseDate(title string) (time.Time, bool) {
	m := reDateTitle.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return time.Time{}, false
	}
	atoi := func(v string) int {
		n, _ := strconv.Atoi(v)
		return n
	}
	loc := s.location
	if m[7] != "" {
		offset := atoi(m[8])*3600 + atoi(m[9])*60
		if m[7] == "-" {
			offset = -offset
		}
		loc = time.FixedZone("", offset)
	}
	return time.Date(atoi(m[3]), time.Month(atoi(m[2])), atoi(m[1]),
		atoi(m[4]), atoi(m[5]), atoi(m[6]), 0, loc), true
}

func parseMedia(body *goquery.Selection, dir string) *history.Media {
	wrap := body.Find(".media_wrap").First()
	if wrap.Length() == 0 {
		return nil
	}
	for _, mc := range mediaClasses {
		a := wrap.Find(mc.selector).First()
		if a.Length() == 0 {
			continue
		}
		media := &history.Media{Kind: mc.kind, Path: a.AttrOr("href", "")}
		if media.Path != "" && !strings.Contains(media.Path, "://") {
			if fi, err := os.Stat(filepath.Join(dir, filepath.FromSlash(media.Path))); err == nil {
				media.Size = fi.Size()
			}
		}
		return media
	}
	return &history.Media{Kind: history.MediaDocument}
}

// textWithBreaks returns the text of sel keeping <br> as newlines.
func textWithBreaks(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		switch goquery.NodeName(c) {
		case "br":
			b.WriteByte('\n')
		case "#text":
			b.WriteString(c.Text())
		default:
			b.WriteString(textWithBreaks(c))
		}
	})
	return b.String()
}

// dedupe drops repeated IDs from a sorted slice, keeping the first copy.
func dedupe(msgs []history.Message) []history.Message {
	out := msgs[:0]
	for _, m := range msgs {
		if len(out) > 0 && out[len(out)-1].ID == m.ID {
			continue
		}
		out = append(out, m)
	}
	return out
}
