package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-pin-slideshow/internal/apperr"
)

func TestDo_HeadersAndUserAgent(t *testing.T) {
	var gotUA, gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cl, err := New(Options{UserAgent: "test-agent/1.0"})
	require.NoError(t, err)
	res, err := cl.ReadAll(context.Background(), Request{
		URL:    srv.URL,
		Header: http.Header{"Authorization": {"Bearer t"}, "Accept": {"image/*"}},
	})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "ok", string(res.Body))
	assert.Equal(t, "test-agent/1.0", gotUA)
	assert.Equal(t, "Bearer t", gotAuth)
	assert.Equal(t, "image/*", gotAccept)
}

func TestDo_ErrorStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer srv.Close()

	cl, err := New(Options{})
	require.NoError(t, err)
	res, err := cl.ReadAll(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Equal(t, "down", string(res.Body))
}

func TestDo_SingleAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cl, err := New(Options{})
	require.NoError(t, err)
	_, err = cl.ReadAll(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cl, err := New(Options{Timeout: time.Second})
	require.NoError(t, err)
	start := time.Now()
	_, err = cl.Do(context.Background(), Request{URL: srv.URL, Timeout: 80 * time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, apperr.Timeout, apperr.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDo_ConnectionFailureIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	cl, err := New(Options{})
	require.NoError(t, err)
	_, err = cl.Do(context.Background(), Request{URL: addr})
	require.Error(t, err)
	assert.Equal(t, apperr.Upstream, apperr.KindOf(err))
}

func TestDo_CloseReleasesDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("body"))
	}))
	defer srv.Close()

	cl, err := New(Options{})
	require.NoError(t, err)
	resp, err := cl.Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	body, ok := resp.Body.(*cancelOnClose)
	require.True(t, ok)
	_, _ = io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	assert.ErrorIs(t, body.ctx.Err(), context.Canceled)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "https://api.example.com/v5/search/pins", redact("https://u:p@api.example.com/v5/search/pins?query=cats"))
}

func TestNew_InvalidProxy(t *testing.T) {
	_, err := New(Options{ProxyHTTP: "http://[::1"})
	assert.Error(t, err)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// brokenBody 模拟连接在响应体中途被重置。
type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) { return 0, errors.New("connection reset by peer") }
func (brokenBody) Close() error             { return nil }

func TestReadAll_BodyFailureIsUpstream(t *testing.T) {
	cl, err := New(Options{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: brokenBody{}}, nil
	})})
	require.NoError(t, err)

	_, err = cl.ReadAll(context.Background(), Request{URL: "https://api.example.com/v5/boards?page_size=100"})
	require.Error(t, err)
	assert.Equal(t, apperr.Upstream, apperr.KindOf(err))
	assert.Equal(t, http.StatusBadGateway, apperr.HTTPStatus(err))
	assert.Contains(t, err.Error(), "GET https://api.example.com/v5/boards")
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.NotContains(t, err.Error(), "page_size")
}

func TestDo_CallerCancelIsCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cl, err := New(Options{})
	require.NoError(t, err)
	_, err = cl.Do(ctx, Request{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, apperr.Canceled, apperr.KindOf(err))
}

func TestDo_CheckRedirectKeepsKind(t *testing.T) {
	var hosts []string
	cl, err := New(Options{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		hosts = append(hosts, r.URL.Host)
		h := http.Header{}
		if r.URL.Host == "a.example.com" {
			h.Set("Location", "http://b.example.com/next")
			return &http.Response{StatusCode: http.StatusFound, Header: h, Body: io.NopCloser(strings.NewReader(""))}, nil
		}
		return &http.Response{StatusCode: http.StatusOK, Header: h, Body: io.NopCloser(strings.NewReader("b"))}, nil
	})})
	require.NoError(t, err)

	// 默认策略跟随重定向
	res, err := cl.ReadAll(context.Background(), Request{URL: "https://a.example.com/start"})
	require.NoError(t, err)
	assert.Equal(t, "b", string(res.Body))
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, hosts)

	hosts = nil
	_, err = cl.Do(context.Background(), Request{
		URL: "https://a.example.com/start",
		CheckRedirect: func(req *http.Request, _ []*http.Request) error {
			return apperr.New(apperr.Forbidden, "redirect", "host not allowed: "+req.URL.Hostname())
		},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
	assert.Equal(t, []string{"a.example.com"}, hosts)
}
