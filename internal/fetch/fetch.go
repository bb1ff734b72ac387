// 包 fetch 封装出站 HTTP 调用：每次调用都有硬性截止时间，超时即取消请求。
// 只尝试一次，不做重试；是否换一个来源重试由上层决定。
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go-pin-slideshow/internal/apperr"
)

const (
	// DefaultTimeout 为普通 API 调用的截止时间。
	DefaultTimeout = 10 * time.Second
	// DefaultUserAgent 为默认的客户端标识。
	DefaultUserAgent = "go-pin-slideshow/1.0 (+image-proxy)"
	// maxBodyBytes 为 ReadAll 读取响应体的上限。
	maxBodyBytes = 8 << 20
)

// Client 为带截止时间的 HTTP 客户端。
type Client struct {
	http      *http.Client
	timeout   time.Duration
	userAgent string
}

// Options 为客户端构造参数。
type Options struct {
	ProxyHTTP  string
	ProxyHTTPS string
	Timeout    time.Duration
	UserAgent  string
	// Transport 非空时替换默认传输层（测试用）。
	Transport http.RoundTripper
}

// Request 描述一次出站调用。Timeout 为 0 时使用客户端默认值。
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    io.Reader
	Timeout time.Duration
	// CheckRedirect 非空时替换默认的重定向策略，对每一跳调用一次。
	CheckRedirect func(req *http.Request, via []*http.Request) error
}

// Result 为完整读取后的响应。
type Result struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK 报告状态码是否为 2xx。
func (r *Result) OK() bool { return r.Status >= 200 && r.Status < 300 }

// New 创建客户端，支持 http/https 代理与连接级超时。
func New(opts Options) (*Client, error) {
	var proxyHTTP, proxyHTTPS *url.URL
	var err error
	if opts.ProxyHTTP != "" {
		if proxyHTTP, err = url.Parse(opts.ProxyHTTP); err != nil {
			return nil, fmt.Errorf("parse http proxy: %w", err)
		}
	}
	if opts.ProxyHTTPS != "" {
		if proxyHTTPS, err = url.Parse(opts.ProxyHTTPS); err != nil {
			return nil, fmt.Errorf("parse https proxy: %w", err)
		}
	}
	rt := opts.Transport
	if rt == nil {
		rt = &http.Transport{
			Proxy: func(req *http.Request) (*url.URL, error) {
				if req.URL.Scheme == "https" && proxyHTTPS != nil {
					return proxyHTTPS, nil
				}
				if req.URL.Scheme == "http" && proxyHTTP != nil {
					return proxyHTTP, nil
				}
				return http.ProxyFromEnvironment(req)
			},
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       90 * time.Second,
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	// 不设置 http.Client.Timeout：截止时间由每次调用的 context 控制。
	return &Client{
		http:      &http.Client{Transport: rt},
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
	}, nil
}

// Do 发起一次调用并返回未读取的响应。
// 非 2xx 状态不视为错误，由调用方判断。计时器在响应体 Close 时释放，
// 调用方必须关闭 resp.Body；出错路径上计时器已在返回前释放。
func (c *Client) Do(ctx context.Context, r Request) (*http.Response, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	op := method + " " + redact(r.URL)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	req, err := http.NewRequestWithContext(ctx, method, r.URL, r.Body)
	if err != nil {
		cancel()
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	hc := c.http
	if r.CheckRedirect != nil {
		perCall := *c.http
		perCall.CheckRedirect = r.CheckRedirect
		hc = &perCall
	}
	resp, err := hc.Do(req)
	if err != nil {
		err = classify(ctx, op, err)
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel, ctx: ctx, op: op}
	return resp, nil
}

// classify 按截止时间、调用方取消与已有类别给传输错误归类，其余一律视为上游失败。
func classify(ctx context.Context, op string, err error) error {
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return apperr.Wrap(apperr.Timeout, op, err)
	case errors.Is(ctxErr, context.Canceled):
		return apperr.Wrap(apperr.Canceled, op, err)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		// 重定向钩子返回的类别（例如 Forbidden）保持不变
		return apperr.Wrap(ae.Kind, op, err)
	}
	return apperr.Wrap(apperr.Upstream, op, err)
}

// ReadAll 发起调用并读取完整响应体（上限 8 MiB），返回时计时器已释放。
func (c *Client) ReadAll(ctx context.Context, r Request) (*Result, error) {
	resp, err := c.Do(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		// 读取错误已由 cancelOnClose 归类为 Upstream/Timeout/Canceled
		return nil, err
	}
	return &Result{Status: resp.StatusCode, Header: resp.Header, Body: b}, nil
}

// cancelOnClose 在响应体关闭时释放截止计时器。
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
	ctx    context.Context
	op     string
}

func (b *cancelOnClose) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		return n, classify(b.ctx, b.op, err)
	}
	return n, err
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// redact 去掉查询串，避免把 token 或搜索词写进错误信息。
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
