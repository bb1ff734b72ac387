package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-pin-slideshow/internal/model"
)

func openTemp(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestSQLite_TokenUpsertAndLoad(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	_, ok, err := s.LoadToken(ctx, "pinterest")
	require.NoError(t, err)
	assert.False(t, ok)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, s.SaveToken(ctx, "pinterest", model.Token{AccessToken: "a1", RefreshToken: "r1", Scope: "boards:read", ExpiresAt: exp}))
	require.NoError(t, s.SaveToken(ctx, "pinterest", model.Token{AccessToken: "a2", TokenType: "bearer"}))

	got, ok, err := s.LoadToken(ctx, "pinterest")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a2", got.AccessToken)
	assert.Equal(t, "bearer", got.TokenType)
	assert.Empty(t, got.RefreshToken)
	assert.True(t, got.ExpiresAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestSQLite_ExpiryRoundTrip(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.SaveToken(ctx, "acc", model.Token{AccessToken: "x", ExpiresAt: exp}))
	got, ok, err := s.LoadToken(ctx, "acc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, exp.Equal(got.ExpiresAt), "got %v", got.ExpiresAt)
}

func TestSQLite_Validation(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	assert.Error(t, s.SaveToken(ctx, "", model.Token{AccessToken: "x"}))
	assert.Error(t, s.SaveToken(ctx, "acc", model.Token{}))
}

func TestSQLite_DeleteAndReopen(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.SaveToken(ctx, "keep", model.Token{AccessToken: "k"}))
	require.NoError(t, s.SaveToken(ctx, "drop", model.Token{AccessToken: "d"}))
	require.NoError(t, s.DeleteToken(ctx, "drop"))
	require.NoError(t, s.DeleteToken(ctx, "missing"))
	require.NoError(t, s.Close())

	// 迁移幂等，重开后数据仍在
	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s2.Close()
	_, ok, err := s2.LoadToken(ctx, "drop")
	require.NoError(t, err)
	assert.False(t, ok)
	got, ok, err := s2.LoadToken(ctx, "keep")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "k", got.AccessToken)
}
