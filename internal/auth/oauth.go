package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"go-pin-slideshow/internal/apperr"
	"go-pin-slideshow/internal/fetch"
	"go-pin-slideshow/internal/logx"
	"go-pin-slideshow/internal/model"
)

const (
	DefaultStateTTL = 10 * time.Minute
	maxPendingState = 1024
)

// DefaultScopes 为读取画板与图片所需的最小权限。
var DefaultScopes = []string{"boards:read", "pins:read", "user_accounts:read"}

type OAuthOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	APIBase      string // 令牌端点为 {APIBase}/oauth/token
	WebBase      string // 授权页为 {WebBase}/oauth/
	StateTTL     time.Duration
}

// OAuth 实现授权码流程。state 为一次性随机值，超过 StateTTL 作废。
type OAuth struct {
	opts   OAuthOptions
	fetch  *fetch.Client
	store  TokenStore
	states *expirable.LRU[string, struct{}]
	now    func() time.Time
}

func NewOAuth(fc *fetch.Client, st TokenStore, opts OAuthOptions) *OAuth {
	if len(opts.Scopes) == 0 {
		opts.Scopes = DefaultScopes
	}
	if opts.StateTTL <= 0 {
		opts.StateTTL = DefaultStateTTL
	}
	opts.APIBase = strings.TrimRight(opts.APIBase, "/")
	opts.WebBase = strings.TrimRight(opts.WebBase, "/")
	return &OAuth{
		opts:   opts,
		fetch:  fc,
		store:  st,
		states: expirable.NewLRU[string, struct{}](maxPendingState, nil, opts.StateTTL),
		now:    time.Now,
	}
}

// Configured 报告客户端凭据是否齐全。
func (o *OAuth) Configured() bool {
	return o.opts.ClientID != "" && o.opts.ClientSecret != "" && o.opts.RedirectURI != ""
}

// AuthorizeURL 生成授权页地址，并登记一个新的 state。
func (o *OAuth) AuthorizeURL() (string, error) {
	if !o.Configured() {
		return "", apperr.New(apperr.MissingCredential, "oauth login", "oauth client is not configured")
	}
	state := uuid.NewString()
	o.states.Add(state, struct{}{})
	q := url.Values{}
	q.Set("client_id", o.opts.ClientID)
	q.Set("redirect_uri", o.opts.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(o.opts.Scopes, ","))
	q.Set("state", state)
	return o.opts.WebBase + "/oauth/?" + q.Encode(), nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Exchange 校验 state 后用授权码换取令牌并保存。
func (o *OAuth) Exchange(ctx context.Context, code, state string) (model.Token, error) {
	const op = "oauth exchange"
	if code == "" {
		return model.Token{}, apperr.New(apperr.BadRequest, op, "missing code")
	}
	if state == "" || !o.states.Remove(state) {
		return model.Token{}, apperr.New(apperr.BadRequest, op, "unknown or expired state")
	}
	if !o.Configured() {
		return model.Token{}, apperr.New(apperr.MissingCredential, op, "oauth client is not configured")
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", o.opts.RedirectURI)

	basic := base64.StdEncoding.EncodeToString([]byte(o.opts.ClientID + ":" + o.opts.ClientSecret))
	res, err := o.fetch.ReadAll(ctx, fetch.Request{
		Method: http.MethodPost,
		URL:    o.opts.APIBase + "/oauth/token",
		Header: http.Header{
			"Authorization": {"Basic " + basic},
			"Content-Type":  {"application/x-www-form-urlencoded"},
			"Accept":        {"application/json"},
		},
		Body: strings.NewReader(form.Encode()),
	})
	if err != nil {
		return model.Token{}, err
	}
	if !res.OK() {
		logx.Warnf("OAuth 换取令牌失败：状态=%d 响应=%s", res.Status, logx.Truncate(string(res.Body), 512))
		return model.Token{}, apperr.UpstreamStatus(op, res.Status, string(res.Body))
	}
	var tr tokenResponse
	if err := json.Unmarshal(res.Body, &tr); err != nil {
		return model.Token{}, apperr.Wrap(apperr.Parse, op, err)
	}
	if tr.AccessToken == "" {
		return model.Token{}, apperr.New(apperr.Parse, op, "response has no access_token")
	}
	now := o.now()
	t := model.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		Scope:        tr.Scope,
		UpdatedAt:    now,
	}
	if tr.ExpiresIn > 0 {
		t.ExpiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	if o.store != nil {
		if err := o.store.SaveToken(ctx, Account, t); err != nil {
			return model.Token{}, apperr.Wrap(apperr.Internal, op, err)
		}
	}
	logx.Infof("OAuth 授权完成：scope=%s", t.Scope)
	return t, nil
}

// Logout 删除已保存的令牌；静态配置的令牌不受影响。
func (o *OAuth) Logout(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	if err := o.store.DeleteToken(ctx, Account); err != nil {
		return apperr.Wrap(apperr.Internal, "oauth logout", err)
	}
	return nil
}
