package pinterest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"go-pin-slideshow/internal/apperr"
	"go-pin-slideshow/internal/fetch"
	"go-pin-slideshow/internal/logx"
	"go-pin-slideshow/internal/normalize"
)

// publicSearchPath 为网页端使用的未授权搜索资源。
const publicSearchPath = "/resource/BaseSearchResource/get/"

// PublicSearch 通过网页端搜索资源取一页结果，无需 token。
// 结果对象携带旧式 images 变体映射，可直接交给 normalize。
func (c *Client) PublicSearch(ctx context.Context, query string, pageSize int) (Page, error) {
	options := map[string]any{"query": query, "scope": "pins"}
	if pageSize > 0 {
		options["page_size"] = pageSize
	}
	data, err := json.Marshal(map[string]any{"options": options, "context": map[string]any{}})
	if err != nil {
		return Page{}, apperr.Wrap(apperr.Internal, "public search", err)
	}
	u := c.webBase + publicSearchPath + "?data=" + url.QueryEscape(string(data))
	op := "GET " + publicSearchPath
	res, err := c.fetch.ReadAll(ctx, fetch.Request{
		URL: u,
		Header: http.Header{
			"Accept":                  {"application/json"},
			"X-Pinterest-Pws-Handler": {"www/search/[scope].js"},
			"X-Requested-With":        {"XMLHttpRequest"},
		},
		Timeout: c.timeout,
	})
	if err != nil {
		return Page{}, err
	}
	if !res.OK() {
		logx.Warnf("公开搜索返回错误：状态=%d 响应=%s", res.Status, logx.Truncate(string(res.Body), 512))
		return Page{}, apperr.UpstreamStatus(op, res.Status, string(res.Body))
	}
	var doc struct {
		ResourceResponse struct {
			Data struct {
				Results json.RawMessage `json:"results"`
			} `json:"data"`
			Bookmark json.RawMessage `json:"bookmark"`
		} `json:"resource_response"`
	}
	if err := json.Unmarshal(res.Body, &doc); err != nil {
		logx.Warnf("公开搜索 JSON 无法解析：响应=%s", logx.Truncate(string(res.Body), 512))
		return Page{}, apperr.Wrap(apperr.Parse, op, err)
	}
	return Page{
		Items:    normalize.Items(doc.ResourceResponse.Data.Results),
		Bookmark: normalize.Scalar(doc.ResourceResponse.Bookmark),
	}, nil
}
