// 包 pinterest 封装 Pinterest REST v5 与公开搜索资源的调用：
// 只负责"拼 URL + 发请求 + 解出 items/bookmark"，归一化与分页策略在上层。
package pinterest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go-pin-slideshow/internal/apperr"
	"go-pin-slideshow/internal/fetch"
	"go-pin-slideshow/internal/logx"
	"go-pin-slideshow/internal/model"
	"go-pin-slideshow/internal/normalize"
)

const (
	DefaultAPIBase = "https://api.pinterest.com/v5"
	DefaultWebBase = "https://www.pinterest.com"
)

// Options 为客户端构造参数。
type Options struct {
	APIBase string
	WebBase string
	Timeout time.Duration
}

// Client 为 Pinterest 调用客户端，可并发使用。
type Client struct {
	fetch   *fetch.Client
	apiBase string
	webBase string
	timeout time.Duration
}

// PageRequest 描述一页请求；Bookmark 为空表示第一页。
type PageRequest struct {
	Token    string
	Endpoint string
	PageSize int
	Bookmark string
	Timeout  time.Duration
}

// Page 为一页原始结果。Bookmark 为空表示集合已取完。
type Page struct {
	Items    []model.RawPin
	Bookmark string
}

func New(fc *fetch.Client, opts Options) *Client {
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	if opts.WebBase == "" {
		opts.WebBase = DefaultWebBase
	}
	return &Client{
		fetch:   fc,
		apiBase: strings.TrimRight(opts.APIBase, "/"),
		webBase: strings.TrimRight(opts.WebBase, "/"),
		timeout: opts.Timeout,
	}
}

func (c *Client) APIBase() string { return c.apiBase }
func (c *Client) WebBase() string { return c.webBase }

// BoardsURL 为当前用户画板列表端点。
func (c *Client) BoardsURL() string { return c.apiBase + "/boards" }

// BoardPinsURL 为单个画板的图片集合端点。
func (c *Client) BoardPinsURL(boardID string) string {
	return c.apiBase + "/boards/" + url.PathEscape(boardID) + "/pins"
}

// SearchURL 为已授权用户的图片搜索端点。
func (c *Client) SearchURL(query string) string {
	return c.apiBase + "/search/pins?query=" + url.QueryEscape(query)
}

// Page 请求一页集合数据。非 2xx 返回携带状态码与原始响应体的 Upstream 错误，
// 无法解析的 JSON 返回 Parse 错误。
func (c *Client) Page(ctx context.Context, pr PageRequest) (Page, error) {
	if pr.Token == "" {
		return Page{}, apperr.New(apperr.MissingCredential, "pinterest page", "no access token")
	}
	u, err := url.Parse(pr.Endpoint)
	if err != nil {
		return Page{}, apperr.Wrap(apperr.Internal, "pinterest page", err)
	}
	q := u.Query()
	if pr.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(pr.PageSize))
	}
	if pr.Bookmark != "" {
		q.Set("bookmark", pr.Bookmark)
	}
	u.RawQuery = q.Encode()

	timeout := pr.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	op := "GET " + u.Path
	res, err := c.fetch.ReadAll(ctx, fetch.Request{
		URL: u.String(),
		Header: http.Header{
			"Authorization": {"Bearer " + pr.Token},
			"Accept":        {"application/json"},
		},
		Timeout: timeout,
	})
	if err != nil {
		return Page{}, err
	}
	if !res.OK() {
		logx.Warnf("上游返回错误：%s 状态=%d 响应=%s", op, res.Status, logx.Truncate(string(res.Body), 512))
		return Page{}, apperr.UpstreamStatus(op, res.Status, string(res.Body))
	}
	return decodePage(op, res.Body)
}

func decodePage(op string, body []byte) (Page, error) {
	var doc struct {
		Items    json.RawMessage `json:"items"`
		Bookmark json.RawMessage `json:"bookmark"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		logx.Warnf("上游 JSON 无法解析：%s 响应=%s", op, logx.Truncate(string(body), 512))
		return Page{}, apperr.Wrap(apperr.Parse, op, err)
	}
	return Page{Items: normalize.Items(doc.Items), Bookmark: normalize.Scalar(doc.Bookmark)}, nil
}

// Board 从原始对象读取画板字段；没有 id 的条目不可用。
func Board(raw model.RawPin) (model.Board, bool) {
	id := normalize.Scalar(raw["id"])
	if id == "" {
		return model.Board{}, false
	}
	return model.Board{
		ID:          id,
		Name:        normalize.Scalar(raw["name"]),
		Description: normalize.Scalar(raw["description"]),
	}, true
}
