// 包 feeds 读取画板的公开 RSS 订阅：
// - BoardFeedURL：拼出 {web_base}/{username}/{board}.rss
// - BoardPins：使用 gofeed 解析并映射为图片记录，无需 token
package feeds

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"go-pin-slideshow/internal/apperr"
	"go-pin-slideshow/internal/fetch"
	"go-pin-slideshow/internal/logx"
	"go-pin-slideshow/internal/model"
)

const (
	DefaultLimit = 60
	MaxLimit     = 120
)

// ClampLimit 把条数限制在 [1, 120]，0 取默认 60。
func ClampLimit(n int) int {
	if n == 0 {
		return DefaultLimit
	}
	return min(max(n, 1), MaxLimit)
}

// Source 为公开画板订阅来源，可并发使用。
type Source struct {
	fetch   *fetch.Client
	webBase string
	timeout time.Duration
}

func New(fc *fetch.Client, webBase string, timeout time.Duration) *Source {
	return &Source{fetch: fc, webBase: strings.TrimRight(webBase, "/"), timeout: timeout}
}

// BoardFeedURL 返回画板的 RSS 地址。
func (s *Source) BoardFeedURL(username, board string) string {
	return s.webBase + "/" + url.PathEscape(username) + "/" + url.PathEscape(board) + ".rss"
}

// BoardPins 抓取并解析画板订阅，按 id 去重后最多返回 limit 条。
func (s *Source) BoardPins(ctx context.Context, username, board string, limit int) ([]model.Pin, error) {
	username, board = strings.TrimSpace(username), strings.TrimSpace(board)
	if !validSegment(username) || !validSegment(board) {
		return nil, apperr.New(apperr.BadRequest, "board feed", "invalid username or board")
	}
	limit = ClampLimit(limit)
	feedURL := s.BoardFeedURL(username, board)
	op := "GET " + feedURL
	res, err := s.fetch.ReadAll(ctx, fetch.Request{
		URL:     feedURL,
		Header:  http.Header{"Accept": {"application/rss+xml, application/xml;q=0.9, */*;q=0.5"}},
		Timeout: s.timeout,
	})
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		logx.Warnf("画板订阅返回错误：%s 状态=%d", feedURL, res.Status)
		return nil, apperr.UpstreamStatus(op, res.Status, logx.Truncate(string(res.Body), 512))
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(res.Body))
	if err != nil {
		logx.Warnf("画板订阅无法解析：%s 错误=%v", feedURL, err)
		return nil, apperr.Wrap(apperr.Parse, op, err)
	}
	pins := Items(feed, limit)
	logx.Debugf("画板订阅 %s 共 %d 条，可用 %d 条", feedURL, len(feed.Items), len(pins))
	return pins, nil
}

// Items 把订阅条目映射为图片记录；没有图片的条目丢弃，按 id 去重，最多 limit 条。
func Items(feed *gofeed.Feed, limit int) []model.Pin {
	out := make([]model.Pin, 0, min(len(feed.Items), limit))
	seen := make(map[string]struct{}, len(feed.Items))
	for _, it := range feed.Items {
		if len(out) >= limit {
			break
		}
		p, ok := Pin(it)
		if !ok {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Pin 映射单个订阅条目。图片依次取 item image、图片类 enclosure、描述 HTML 中的第一个 <img>。
func Pin(it *gofeed.Item) (model.Pin, bool) {
	if it == nil {
		return model.Pin{}, false
	}
	var doc *goquery.Document
	if html := firstNonEmpty(it.Description, it.Content); html != "" {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(html))
	}
	image := itemImage(it, doc)
	if image == "" {
		return model.Pin{}, false
	}
	title := strings.TrimSpace(it.Title)
	if title == "" && doc != nil {
		title = strings.Join(strings.Fields(doc.Text()), " ")
	}
	link := strings.TrimSpace(it.Link)
	p := model.Pin{
		ID:    firstNonEmpty(it.GUID, link, image),
		Title: title,
		Image: image,
	}
	if link != "" {
		p.Link = &link
	}
	return p, true
}

func itemImage(it *gofeed.Item, doc *goquery.Document) string {
	if it.Image != nil && strings.TrimSpace(it.Image.URL) != "" {
		return strings.TrimSpace(it.Image.URL)
	}
	for _, enc := range it.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(enc.Type), "image/") || enc.Type == "" {
			return strings.TrimSpace(enc.URL)
		}
	}
	if doc == nil {
		return ""
	}
	var src string
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("src")
		src = strings.TrimSpace(v)
		return src == ""
	})
	return src
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, "/?#")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
