// 包 apperr 定义聚合层统一的错误类型：
// - Kind 区分错误类别（缺少凭证/参数错误/上游失败/超时等）
// - Error 保留上游状态码与原始响应体，便于诊断接口漂移
// - HTTPStatus 将错误映射为对外的 HTTP 状态码
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind 为错误类别。
type Kind int

const (
	Internal Kind = iota
	MissingCredential
	BadRequest
	Forbidden
	Upstream
	Timeout
	PayloadTooLarge
	Parse
	Canceled
)

// StatusClientClosedRequest 表示客户端在响应前断开（沿用 nginx 的 499）。
const StatusClientClosedRequest = 499

func (k Kind) String() string {
	switch k {
	case MissingCredential:
		return "missing_credential"
	case BadRequest:
		return "bad_request"
	case Forbidden:
		return "forbidden"
	case Upstream:
		return "upstream_error"
	case Timeout:
		return "timeout"
	case PayloadTooLarge:
		return "payload_too_large"
	case Parse:
		return "parse_error"
	case Canceled:
		return "canceled"
	default:
		return "internal"
	}
}

// Error 是可追溯的业务错误。
type Error struct {
	Kind   Kind
	Op     string // 出错的操作，例如 "list boards"
	Status int    // 上游 HTTP 状态码（仅 Upstream）
	Body   string // 上游原始响应体（仅 Upstream）
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Kind == Upstream && e.Status != 0:
		fmt.Fprintf(&b, "upstream status %d", e.Status)
	default:
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is 允许 errors.Is(err, &apperr.Error{Kind: apperr.Timeout}) 按类别匹配。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// UpstreamStatus 构造携带状态码与原始响应体的上游错误。
func UpstreamStatus(op string, status int, body string) *Error {
	return &Error{Kind: Upstream, Op: op, Status: status, Body: body}
}

// KindOf 返回错误链中第一个 *Error 的类别，找不到时为 Internal。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// StatusOf 返回错误链中记录的上游状态码（没有则为 0）。
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// HTTPStatus 把错误映射为返回给前端的状态码。
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case MissingCredential:
		return http.StatusInternalServerError
	case BadRequest:
		return http.StatusBadRequest
	case Forbidden:
		return http.StatusForbidden
	case Upstream, Timeout, Parse:
		return http.StatusBadGateway
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case Canceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
