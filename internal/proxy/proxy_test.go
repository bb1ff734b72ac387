package proxy

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-pin-slideshow/internal/apperr"
	"go-pin-slideshow/internal/fetch"
)

// roundTripFunc 让测试直接构造上游响应，而不必解析真实域名。
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newProxy(t *testing.T, rt roundTripFunc) *Proxy {
	t.Helper()
	fc, err := fetch.New(fetch.Options{Transport: rt})
	require.NoError(t, err)
	return New(fc, Options{})
}

func response(status int, length int64, ct, body string) *http.Response {
	h := http.Header{}
	if ct != "" {
		h.Set("Content-Type", ct)
	}
	return &http.Response{
		StatusCode:    status,
		Header:        h,
		ContentLength: length,
		Body:          io.NopCloser(strings.NewReader(body)),
	}
}

func TestAllowed(t *testing.T) {
	p := New(nil, Options{AllowedSuffixes: []string{"pinimg.com", ".Example.org "}})
	tests := []struct {
		host string
		want bool
	}{
		{"i.pinimg.com", true},
		{"pinimg.com", true},
		{"I.PINIMG.COM.", true},
		{"cdn.example.org", true},
		{"evilpinimg.com", false},
		{"pinimg.com.evil.net", false},
		{"evil.example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Allowed(tt.host), tt.host)
	}
}

func TestParseTarget(t *testing.T) {
	for _, raw := range []string{"", "   ", "ftp://i.pinimg.com/x.png", "/relative/x.png", "i.pinimg.com/x.png", "http://", "%zz"} {
		_, err := ParseTarget(raw)
		assert.Equal(t, apperr.BadRequest, apperr.KindOf(err), "raw=%q", raw)
	}
	u, err := ParseTarget("https://i.pinimg.com/originals/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "i.pinimg.com", u.Hostname())
}

func TestOpen_RejectsBeforeFetching(t *testing.T) {
	var calls int32
	p := newProxy(t, func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return response(http.StatusOK, 1, "image/png", "x"), nil
	})

	_, err := p.Open(context.Background(), "https://evil.example.com/x.png")
	assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(err))

	_, err = p.Open(context.Background(), "ftp://i.pinimg.com/x.png")
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))

	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestOpen_DeclaredTooLarge(t *testing.T) {
	p := newProxy(t, func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, 30<<20, "image/jpeg", ""), nil
	})
	_, err := p.Open(context.Background(), "https://i.pinimg.com/big.jpg")
	require.Error(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, apperr.HTTPStatus(err))
}

func TestOpen_UndeclaredLengthStreams(t *testing.T) {
	p := newProxy(t, func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, -1, "", "raw-bytes"), nil
	})
	img, err := p.Open(context.Background(), "https://i.pinimg.com/x")
	require.NoError(t, err)
	defer img.Body.Close()
	assert.Equal(t, "application/octet-stream", img.ContentType)
	b, err := io.ReadAll(img.Body)
	require.NoError(t, err)
	assert.Equal(t, "raw-bytes", string(b))
}

func TestOpen_RequestHeadersAndPassthrough(t *testing.T) {
	var got *http.Request
	p := newProxy(t, func(r *http.Request) (*http.Response, error) {
		got = r
		return response(http.StatusOK, 3, "image/webp", "abc"), nil
	})
	img, err := p.Open(context.Background(), "https://i.pinimg.com/736x/a.webp")
	require.NoError(t, err)
	defer img.Body.Close()

	assert.Equal(t, "image/*", got.Header.Get("Accept"))
	assert.Equal(t, fetch.DefaultUserAgent, got.Header.Get("User-Agent"))
	assert.Equal(t, "image/webp", img.ContentType)
	assert.Equal(t, int64(3), img.ContentLength)

	h := http.Header{}
	WriteHeaders(h, img)
	assert.Equal(t, "public, max-age=86400", h.Get("Cache-Control"))
	assert.Equal(t, "*", h.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "3", h.Get("Content-Length"))
}

func TestOpen_UpstreamFailure(t *testing.T) {
	p := newProxy(t, func(*http.Request) (*http.Response, error) {
		return response(http.StatusNotFound, -1, "text/plain", "gone"), nil
	})
	_, err := p.Open(context.Background(), "https://i.pinimg.com/missing.jpg")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, apperr.HTTPStatus(err))
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err))
}

// redirector 让 www.pinterest.com 把请求 302 到 target，并记录被访问的主机。
func redirector(target string, hosts *[]string) roundTripFunc {
	return func(r *http.Request) (*http.Response, error) {
		*hosts = append(*hosts, r.URL.Hostname())
		if r.URL.Hostname() == "www.pinterest.com" {
			resp := response(http.StatusFound, 0, "", "")
			resp.Header.Set("Location", target)
			return resp, nil
		}
		return response(http.StatusOK, 3, "image/png", "png"), nil
	}
}

func TestOpen_RedirectOffAllowList(t *testing.T) {
	for _, target := range []string{
		"http://evil.example.com/x.png",
		"http://169.254.169.254/latest/meta-data",
		"ftp://i.pinimg.com/x.png",
	} {
		var hosts []string
		p := newProxy(t, redirector(target, &hosts))
		_, err := p.Open(context.Background(), "https://www.pinterest.com/offsite/?url=x")
		require.Error(t, err, target)
		assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(err), target)
		assert.Equal(t, []string{"www.pinterest.com"}, hosts, target)
	}
}

func TestOpen_RedirectWithinAllowList(t *testing.T) {
	var hosts []string
	p := newProxy(t, redirector("https://i.pinimg.com/originals/a.png", &hosts))
	img, err := p.Open(context.Background(), "https://www.pinterest.com/pin/1/image")
	require.NoError(t, err)
	defer img.Body.Close()
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, []string{"www.pinterest.com", "i.pinimg.com"}, hosts)
}

func TestOpen_RedirectLoop(t *testing.T) {
	var hosts []string
	p := newProxy(t, redirector("https://www.pinterest.com/again", &hosts))
	_, err := p.Open(context.Background(), "https://www.pinterest.com/start")
	require.Error(t, err)
	assert.Equal(t, apperr.Upstream, apperr.KindOf(err))
	assert.Len(t, hosts, maxRedirects)
}
