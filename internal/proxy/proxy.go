// 包 proxy 以同源方式转发白名单内的外部图片，避免前端 canvas 跨域污染。
// 主机白名单是防止成为开放代理的唯一屏障。
package proxy

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go-pin-slideshow/internal/apperr"
	"go-pin-slideshow/internal/fetch"
	"go-pin-slideshow/internal/logx"
)

const (
	DefaultTimeout  = 15 * time.Second
	DefaultMaxBytes = 25 << 20
	defaultType     = "application/octet-stream"
	maxRedirects    = 5
)

// DefaultAllowedSuffixes 为默认允许的图片 CDN 域名。
var DefaultAllowedSuffixes = []string{"pinimg.com", "pinterest.com"}

type Options struct {
	AllowedSuffixes []string
	MaxBytes        int64
	Timeout         time.Duration
}

// Image 为待转发的图片。调用方必须关闭 Body。
type Image struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64 // -1 表示未知
}

// Proxy 图片转发器，可并发使用。
type Proxy struct {
	fetch    *fetch.Client
	suffixes []string
	maxBytes int64
	timeout  time.Duration
}

func New(fc *fetch.Client, opts Options) *Proxy {
	if len(opts.AllowedSuffixes) == 0 {
		opts.AllowedSuffixes = DefaultAllowedSuffixes
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	suffixes := make([]string, 0, len(opts.AllowedSuffixes))
	for _, s := range opts.AllowedSuffixes {
		s = strings.Trim(strings.ToLower(strings.TrimSpace(s)), ".")
		if s != "" {
			suffixes = append(suffixes, s)
		}
	}
	return &Proxy{fetch: fc, suffixes: suffixes, maxBytes: opts.MaxBytes, timeout: opts.Timeout}
}

// ParseTarget 要求 raw 为 http/https 绝对地址，否则返回 BadRequest。
func ParseTarget(raw string) (*url.URL, error) {
	const op = "image proxy"
	if strings.TrimSpace(raw) == "" {
		return nil, apperr.New(apperr.BadRequest, op, "missing url parameter")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, apperr.New(apperr.BadRequest, op, "invalid url")
	}
	if !u.IsAbs() || u.Hostname() == "" {
		return nil, apperr.New(apperr.BadRequest, op, "url must be absolute")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apperr.New(apperr.BadRequest, op, "unsupported protocol "+u.Scheme)
	}
	return u, nil
}

// Allowed 报告主机是否在白名单内：与某个后缀相同，或以 "."+后缀 结尾。
func (p *Proxy) Allowed(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, s := range p.suffixes {
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

// Open 校验地址并打开上游图片。声明的 Content-Length 超过上限时在读取响应体前拒绝；
// 未声明长度的响应照常转发。
func (p *Proxy) Open(ctx context.Context, raw string) (*Image, error) {
	u, err := ParseTarget(raw)
	if err != nil {
		return nil, err
	}
	if !p.Allowed(u.Hostname()) {
		logx.Warnf("图片代理拒绝非白名单主机：%s", u.Hostname())
		return nil, apperr.New(apperr.Forbidden, "image proxy", "host not allowed: "+u.Hostname())
	}
	resp, err := p.fetch.Do(ctx, fetch.Request{
		URL:           u.String(),
		Header:        http.Header{"Accept": {"image/*"}},
		Timeout:       p.timeout,
		CheckRedirect: p.checkRedirect,
	})
	if err != nil {
		logx.Warnf("图片代理上游请求失败：%s 错误=%v", u.Hostname(), err)
		return nil, err
	}
	op := "GET " + u.Host + u.Path
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		logx.Warnf("图片代理上游返回错误：%s 状态=%d", op, resp.StatusCode)
		return nil, apperr.UpstreamStatus(op, resp.StatusCode, string(body))
	}
	if n := declaredLength(resp); n > p.maxBytes {
		resp.Body.Close()
		logx.Warnf("图片代理拒绝过大图片：%s 声明大小=%d 上限=%d", op, n, p.maxBytes)
		return nil, apperr.New(apperr.PayloadTooLarge, "image proxy", "image too large: "+strconv.FormatInt(n, 10)+" bytes")
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = defaultType
	}
	return &Image{Body: resp.Body, ContentType: ct, ContentLength: resp.ContentLength}, nil
}

// checkRedirect 对每一跳重新校验协议与白名单，防止经由白名单主机跳转到任意地址。
func (p *Proxy) checkRedirect(req *http.Request, via []*http.Request) error {
	const op = "image proxy"
	if len(via) >= maxRedirects {
		return apperr.New(apperr.Upstream, op, "too many redirects")
	}
	host := req.URL.Hostname()
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		logx.Warnf("图片代理拒绝重定向协议：%s", req.URL.Scheme)
		return apperr.New(apperr.Forbidden, op, "redirect to unsupported protocol "+req.URL.Scheme)
	}
	if !p.Allowed(host) {
		logx.Warnf("图片代理拒绝重定向到非白名单主机：%s", host)
		return apperr.New(apperr.Forbidden, op, "redirect to host not allowed: "+host)
	}
	return nil
}

func declaredLength(resp *http.Response) int64 {
	if resp.ContentLength >= 0 {
		return resp.ContentLength
	}
	if v := resp.Header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return -1
}

// WriteHeaders 写入转发响应的固定头部。
func WriteHeaders(h http.Header, img *Image) {
	h.Set("Content-Type", img.ContentType)
	if img.ContentLength >= 0 {
		h.Set("Content-Length", strconv.FormatInt(img.ContentLength, 10))
	}
	h.Set("Cache-Control", "public, max-age=86400")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("X-Content-Type-Options", "nosniff")
}
