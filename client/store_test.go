package client

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-buildtracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCredentialStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "credentials.yaml")
	store := NewFileCredentialStore(path).WithEndpoint("http://localhost:8080")

	tokens, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, tokens)

	require.NoError(t, store.Save(ctx, &buildtracker.Tokens{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    1700000000,
		User:         &buildtracker.Account{ID: "u1", Email: "jane@x.com"},
	}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "endpoint: http://localhost:8080")
	assert.Contains(t, string(raw), "refresh_token: refresh")

	tokens, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, tokens)
	assert.Equal(t, "access", tokens.AccessToken)
	assert.Equal(t, int64(1700000000), tokens.ExpiresAt)
	require.NotNil(t, tokens.User)
	assert.Equal(t, "jane@x.com", tokens.User.Email)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))

	tokens, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, tokens)
}

func TestFileCredentialStoreIgnoresOtherEndpoint(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.yaml")

	require.NoError(t, NewFileCredentialStore(path).WithEndpoint("https://a.example").
		Save(ctx, &buildtracker.Tokens{AccessToken: "access"}))

	tokens, err := NewFileCredentialStore(path).WithEndpoint("https://b.example").Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, tokens)
}

func TestFileCredentialStoreMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tokens: [not, a, map"), 0o600))

	_, err := NewFileCredentialStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestMemoryCredentialStoreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	in := &buildtracker.Tokens{AccessToken: "a"}
	require.NoError(t, store.Save(ctx, in))
	in.AccessToken = "changed"

	out, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", out.AccessToken)

	require.NoError(t, store.Clear(ctx))
	out, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, out)
}
