// 包 search 提供图片搜索：
// - api 模式：已授权的 /search/pins，单页
// - public 模式：网页端公开搜索资源，无需 token
// 成功结果按 (query, limit, mode) 缓存在有界、带过期的 LRU 中。
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"go-pin-slideshow/internal/apperr"
	"go-pin-slideshow/internal/logx"
	"go-pin-slideshow/internal/model"
	"go-pin-slideshow/internal/normalize"
	"go-pin-slideshow/internal/pinterest"
)

type Mode string

const (
	ModeAPI    Mode = "api"
	ModePublic Mode = "public"
)

const (
	DefaultLimit     = 60
	MaxLimit         = 120
	DefaultCacheSize = 256
	DefaultCacheTTL  = 10 * time.Minute
)

// ParseMode 解析模式名；空串返回 def。
func ParseMode(s string, def Mode) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return def, nil
	case ModeAPI:
		return ModeAPI, nil
	case ModePublic:
		return ModePublic, nil
	}
	return "", apperr.New(apperr.BadRequest, "search", fmt.Sprintf("unknown search mode %q", s))
}

// ClampLimit 把条数限制在 [1, 120]，0 取默认 60。
func ClampLimit(n int) int {
	if n == 0 {
		return DefaultLimit
	}
	return min(max(n, 1), MaxLimit)
}

// Upstream 为搜索上游，*pinterest.Client 即为实现。
type Upstream interface {
	Page(ctx context.Context, pr pinterest.PageRequest) (pinterest.Page, error)
	SearchURL(query string) string
	PublicSearch(ctx context.Context, query string, pageSize int) (pinterest.Page, error)
}

// TokenSource 提供 api 模式所需的访问令牌。
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Options struct {
	DefaultMode Mode
	CacheSize   int
	CacheTTL    time.Duration
	Normalizer  normalize.Normalizer
}

// Result 为一次搜索结果。Source 为实际使用的模式名。
type Result struct {
	Source string
	Cached bool
	Items  []model.Pin
}

type cacheKey struct {
	query string
	limit int
	mode  Mode
}

// Service 为搜索服务，可并发使用。
type Service struct {
	up     Upstream
	tokens TokenSource
	mode   Mode
	norm   normalize.Normalizer
	cache  *expirable.LRU[cacheKey, []model.Pin]
}

func New(up Upstream, tokens TokenSource, opts Options) *Service {
	if opts.DefaultMode == "" {
		opts.DefaultMode = ModeAPI
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Normalizer.Selector == nil {
		opts.Normalizer = normalize.Default
	}
	return &Service{
		up:     up,
		tokens: tokens,
		mode:   opts.DefaultMode,
		norm:   opts.Normalizer,
		cache:  expirable.NewLRU[cacheKey, []model.Pin](opts.CacheSize, nil, opts.CacheTTL),
	}
}

// DefaultMode 返回未指定 mode 时使用的模式。
func (s *Service) DefaultMode() Mode { return s.mode }

// Search 执行搜索。query 为空返回 BadRequest；未命中缓存时总是访问上游，
// 只有成功结果会写入缓存。
func (s *Service) Search(ctx context.Context, query string, limit int, mode Mode) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.New(apperr.BadRequest, "search", "missing query parameter q")
	}
	mode, err := ParseMode(string(mode), s.mode)
	if err != nil {
		return nil, err
	}
	limit = ClampLimit(limit)
	key := cacheKey{query: query, limit: limit, mode: mode}
	if items, ok := s.cache.Get(key); ok {
		logx.Debugf("搜索命中缓存：q=%q limit=%d mode=%s", query, limit, mode)
		return &Result{Source: string(mode), Cached: true, Items: items}, nil
	}

	var page pinterest.Page
	switch mode {
	case ModePublic:
		page, err = s.up.PublicSearch(ctx, query, limit)
	default:
		page, err = s.apiPage(ctx, query, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", mode, err)
	}
	items := s.norm.Collection(page.Items)
	if len(items) > limit {
		items = items[:limit]
	}
	s.cache.Add(key, items)
	logx.Infof("搜索完成：q=%q mode=%s 条数=%d", query, mode, len(items))
	return &Result{Source: string(mode), Items: items}, nil
}

func (s *Service) apiPage(ctx context.Context, query string, limit int) (pinterest.Page, error) {
	if s.tokens == nil {
		return pinterest.Page{}, apperr.New(apperr.MissingCredential, "search", "no access token")
	}
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return pinterest.Page{}, err
	}
	return s.up.Page(ctx, pinterest.PageRequest{
		Token:    token,
		Endpoint: s.up.SearchURL(query),
		PageSize: limit,
	})
}
