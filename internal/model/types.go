// 包 model 定义对外的数据模型（图片记录/画板）。
package model

import (
	"encoding/json"
	"time"
)

// Pin 为归一化后的图片记录，字段形状是前端依赖的接口契约，不可改动。
// Link 为 nil 时序列化为 JSON null。
type Pin struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Link  *string `json:"link"`
	Image string  `json:"image"`
}

// Board 表示上游的画板，仅用于分发抓取与 /api/me/boards 元数据。
type Board struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RawPin 为上游未定型的图片对象：保留原始 JSON，所有字段都视为可选。
// 用 RawMessage 而非 any 是为了保留变体映射中键的原始顺序。
type RawPin = map[string]json.RawMessage

// Token 为 OAuth 换取的访问令牌，按账号键持久化。
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresAt    time.Time // 零值表示未知或不过期
	UpdatedAt    time.Time
}

// Expired 判断令牌是否已过期。
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}
