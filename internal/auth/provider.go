// 包 auth 提供访问令牌来源：
// - Static：配置文件/环境变量中的固定令牌
// - Stored：OAuth 回调后保存在 SQLite 中的令牌
// - Chain：按顺序取第一个可用的令牌
// 以及 OAuth 授权码流程（Login URL 与 code 换 token）。
package auth

import (
	"context"
	"errors"
	"time"

	"go-pin-slideshow/internal/apperr"
	"go-pin-slideshow/internal/model"
)

// Account 为单用户部署下令牌在存储中的账号键。
const Account = "pinterest"

// ErrNoToken 表示没有任何可用令牌。
var ErrNoToken = apperr.New(apperr.MissingCredential, "token", "no access token configured; visit /auth/login or set PINTEREST_ACCESS_TOKEN")

// Provider 为访问令牌来源。没有令牌时返回 MissingCredential 错误。
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// Static 返回固定令牌。
type Static string

func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// TokenStore 为令牌持久化接口，*store.SQLite 即为实现。
type TokenStore interface {
	SaveToken(ctx context.Context, account string, t model.Token) error
	LoadToken(ctx context.Context, account string) (model.Token, bool, error)
	DeleteToken(ctx context.Context, account string) error
}

// Stored 从存储读取令牌，过期视为不存在。
type Stored struct {
	Store   TokenStore
	Account string
	now     func() time.Time
}

func NewStored(st TokenStore) *Stored {
	return &Stored{Store: st, Account: Account, now: time.Now}
}

func (s *Stored) Token(ctx context.Context) (string, error) {
	if s == nil || s.Store == nil {
		return "", ErrNoToken
	}
	t, ok, err := s.Store.LoadToken(ctx, s.Account)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "load token", err)
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	if !ok || t.AccessToken == "" || t.Expired(now()) {
		return "", ErrNoToken
	}
	return t.AccessToken, nil
}

// Chain 依次询问各来源，第一个给出令牌者胜出。
// 只有 MissingCredential 会继续尝试下一个，其他错误直接返回。
type Chain []Provider

func (c Chain) Token(ctx context.Context) (string, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		tok, err := p.Token(ctx)
		if err == nil && tok != "" {
			return tok, nil
		}
		if err != nil && !errors.Is(err, &apperr.Error{Kind: apperr.MissingCredential}) {
			return "", err
		}
	}
	return "", ErrNoToken
}

// Authenticated 判断当前是否有可用令牌。
func Authenticated(ctx context.Context, p Provider) bool {
	if p == nil {
		return false
	}
	tok, err := p.Token(ctx)
	return err == nil && tok != ""
}
