// 包 store 提供存储实现（SQLite），目前只保存 OAuth 访问令牌。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"go-pin-slideshow/internal/model"
)

// SQLite 封装 *sql.DB，基于 modernc.org/sqlite（纯 Go 实现）。
type SQLite struct {
	db *sql.DB
}

// OpenSQLite 打开 SQLite 数据库并执行自动迁移。
func OpenSQLite(path string) (*SQLite, error) {
	// modernc sqlite 的 DSN 可直接使用文件路径，或以 'file:...' 前缀表示
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// migrate 执行建表语句，保持幂等。
func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tokens (
            account TEXT PRIMARY KEY,
            access_token TEXT NOT NULL,
            refresh_token TEXT,
            token_type TEXT,
            scope TEXT,
            expires_at TIMESTAMP,
            updated_at TIMESTAMP
        );`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec migrate: %w", err)
		}
	}
	return nil
}

// SaveToken 插入或更新账号的令牌（account 主键）。
func (s *SQLite) SaveToken(ctx context.Context, account string, t model.Token) error {
	if account == "" {
		return errors.New("token.account required")
	}
	if t.AccessToken == "" {
		return errors.New("token.access_token required")
	}
	var expires sql.NullTime
	if !t.ExpiresAt.IsZero() {
		expires = sql.NullTime{Time: t.ExpiresAt.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO tokens(account, access_token, refresh_token, token_type, scope, expires_at, updated_at)
        VALUES(?,?,?,?,?,?,?)
        ON CONFLICT(account) DO UPDATE SET access_token=excluded.access_token, refresh_token=excluded.refresh_token, token_type=excluded.token_type, scope=excluded.scope, expires_at=excluded.expires_at, updated_at=excluded.updated_at`,
		account, t.AccessToken, t.RefreshToken, t.TokenType, t.Scope, expires, nowOr(t.UpdatedAt).UTC())
	if err != nil {
		return fmt.Errorf("upsert token %s: %w", account, err)
	}
	return nil
}

// LoadToken 读取账号的令牌，不存在时 ok=false。
func (s *SQLite) LoadToken(ctx context.Context, account string) (model.Token, bool, error) {
	var (
		t         model.Token
		refresh   sql.NullString
		tokenType sql.NullString
		scope     sql.NullString
		expires   sql.NullTime
		updated   sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `SELECT access_token, refresh_token, token_type, scope, expires_at, updated_at FROM tokens WHERE account = ?`, account).
		Scan(&t.AccessToken, &refresh, &tokenType, &scope, &expires, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Token{}, false, nil
	}
	if err != nil {
		return model.Token{}, false, fmt.Errorf("query token %s: %w", account, err)
	}
	t.RefreshToken = refresh.String
	t.TokenType = tokenType.String
	t.Scope = scope.String
	if expires.Valid {
		t.ExpiresAt = expires.Time
	}
	if updated.Valid {
		t.UpdatedAt = updated.Time
	}
	return t, true, nil
}

// DeleteToken 删除账号的令牌；不存在时不报错。
func (s *SQLite) DeleteToken(ctx context.Context, account string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE account = ?`, account); err != nil {
		return fmt.Errorf("delete token %s: %w", account, err)
	}
	return nil
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
