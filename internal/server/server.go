// 包 server 组装 HTTP 路由：
// - /api/me/boards、/api/me/pins、/api/boards/{boardId}/pins：需要访问令牌
// - /api/search：按模式搜索，结果带缓存
// - /api/image-proxy：白名单图片同源转发
// - /api/feeds/{username}/{board}/pins：公开画板订阅
// - /auth/*：OAuth 登录与回调
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"go-pin-slideshow/internal/aggregate"
	"go-pin-slideshow/internal/apperr"
	"go-pin-slideshow/internal/auth"
	"go-pin-slideshow/internal/feeds"
	"go-pin-slideshow/internal/logx"
	"go-pin-slideshow/internal/model"
	"go-pin-slideshow/internal/proxy"
	"go-pin-slideshow/internal/search"
)

const defaultPinLimit = 120

// Deps 为路由依赖。OAuth、Feeds 为空时对应路由返回 404；StaticDir 为空时不托管前端。
type Deps struct {
	Tokens    auth.Provider
	Pins      *aggregate.Runner
	Search    *search.Service
	Proxy     *proxy.Proxy
	Feeds     *feeds.Source
	OAuth     *auth.OAuth
	StaticDir string
}

type Server struct {
	d Deps
}

// NewRouter 创建带访问日志与 gzip 的 chi 路由。
func NewRouter(d Deps) http.Handler {
	s := &Server{d: d}
	r := chi.NewRouter()
	r.Use(accessLog)

	r.Get("/healthz", s.healthz)
	r.Route("/api", func(r chi.Router) {
		r.Get("/me/boards", s.myBoards)
		r.Get("/me/pins", s.myPins)
		r.Get("/boards/{boardId}/pins", s.boardPins)
		r.Get("/search", s.search)
		r.Get("/image-proxy", s.imageProxy)
		if d.Feeds != nil {
			r.Get("/feeds/{username}/{board}/pins", s.feedPins)
		}
		r.Get("/auth/status", s.authStatus)
	})
	if d.OAuth != nil {
		r.Route("/auth", func(r chi.Router) {
			r.Get("/login", s.login)
			r.Get("/callback", s.callback)
			r.Post("/logout", s.logout)
		})
	}
	if d.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(d.StaticDir)))
	}
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) token(r *http.Request) (string, error) {
	if s.d.Tokens == nil {
		return "", auth.ErrNoToken
	}
	return s.d.Tokens.Token(r.Context())
}

func (s *Server) myBoards(w http.ResponseWriter, r *http.Request) {
	tok, err := s.token(r)
	if err != nil {
		writeError(w, err)
		return
	}
	boards, err := s.d.Pins.ListBoards(r.Context(), tok)
	if err != nil {
		writeError(w, err)
		return
	}
	if boards == nil {
		boards = []model.Board{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": boards})
}

func (s *Server) myPins(w http.ResponseWriter, r *http.Request) {
	tok, err := s.token(r)
	if err != nil {
		writeError(w, err)
		return
	}
	agg, err := s.d.Pins.AllPins(r.Context(), tok, queryInt(r, "limit", defaultPinLimit))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": agg.Items})
}

func (s *Server) boardPins(w http.ResponseWriter, r *http.Request) {
	tok, err := s.token(r)
	if err != nil {
		writeError(w, err)
		return
	}
	pins, err := s.d.Pins.BoardPins(r.Context(), tok, chi.URLParam(r, "boardId"), queryInt(r, "limit", defaultPinLimit))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": pins})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, err := search.ParseMode(q.Get("mode"), s.d.Search.DefaultMode())
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.d.Search.Search(r.Context(), q.Get("q"), queryInt(r, "limit", search.DefaultLimit), mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"source": res.Source,
		"cached": res.Cached,
		"items":  res.Items,
	})
}

func (s *Server) imageProxy(w http.ResponseWriter, r *http.Request) {
	img, err := s.d.Proxy.Open(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer img.Body.Close()
	proxy.WriteHeaders(w.Header(), img)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, img.Body); err != nil {
		logx.Debugf("图片转发中断：%v", err)
	}
}

func (s *Server) feedPins(w http.ResponseWriter, r *http.Request) {
	pins, err := s.d.Feeds.BoardPins(r.Context(), chi.URLParam(r, "username"), chi.URLParam(r, "board"), queryInt(r, "limit", feeds.DefaultLimit))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": pins})
}

func (s *Server) authStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"authenticated":    auth.Authenticated(r.Context(), s.d.Tokens),
		"oauth_configured": s.d.OAuth != nil && s.d.OAuth.Configured(),
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	u, err := s.d.OAuth.AuthorizeURL()
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, apperr.New(apperr.BadRequest, "oauth callback", "authorization denied: "+e))
		return
	}
	if _, err := s.d.OAuth.Exchange(r.Context(), q.Get("code"), q.Get("state")); err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.d.OAuth.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// queryInt 读取整数查询参数；缺失或非数字时返回 def，范围由下游钳制。
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n == 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Warnf("写入响应失败：%v", err)
	}
}

// writeError 输出 {ok:false, error}；上游错误附带 status 字段。
func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	body := map[string]any{"ok": false, "error": err.Error()}
	if up := apperr.StatusOf(err); up != 0 {
		body["status"] = up
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body["kind"] = ae.Kind.String()
	}
	switch {
	case status == apperr.StatusClientClosedRequest:
		logx.Infof("客户端已断开：%v", err)
	case status >= http.StatusInternalServerError:
		logx.Errorf("请求失败：状态=%d 错误=%v", status, err)
	}
	writeJSON(w, status, body)
}
