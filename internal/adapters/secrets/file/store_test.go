package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRejectsInvalidKeys(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	testCases := []struct {
		name    string
		key     string
		wantErr string
	}{
		{name: "empty", key: "", wantErr: "secret key is empty"},
		{name: "whitespace", key: "   ", wantErr: "secret key is empty"},
		{name: "absolute", key: "/absolute/path", wantErr: "invalid secret key"},
		{name: "traversal", key: "../escape", wantErr: "invalid secret key"},
		{name: "deep traversal", key: "../../secret", wantErr: "invalid secret key"},
		{name: "traversal behind scheme", key: "aws://../../secret", wantErr: "invalid secret key"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := store.Put(context.Background(), tc.key, "value")
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestStorePutGetRoundTripAndPermissions(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root)
	key := "aws://prod/credentials"
	want := `{"access_key_id":"AKIA","secret_access_key":"s"}`

	err := store.Put(context.Background(), key, want)
	require.NoError(t, err)

	got, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	secretPath := filepath.Join(root, "aws", "prod", "credentials")
	info, err := os.Stat(secretPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(secretFileMod), info.Mode().Perm())
}

func TestStoreGetMissingSecretIsSecretNotFound(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	_, err := store.Get(context.Background(), "aws://missing/credentials")
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestStoreDeleteIsIdempotentWhenSecretMissing(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	key := "aws://prod/credentials"

	err := store.Delete(context.Background(), key)
	require.NoError(t, err)

	err = store.Delete(context.Background(), key)
	require.NoError(t, err)
}

func TestStorePutReplacesWithoutLeavingStagingFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root)
	key := "aws://prod/credentials"

	require.NoError(t, store.Put(context.Background(), key, "first"))
	require.NoError(t, store.Put(context.Background(), key, "second"))

	got, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	entries, err := os.ReadDir(filepath.Join(root, "aws", "prod"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "credentials", entries[0].Name())
}

func TestStoreDeletePrunesEmptyAccountDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root)

	require.NoError(t, store.Put(context.Background(), "aws://prod/credentials", "prod"))
	require.NoError(t, store.Put(context.Background(), "aws://staging/credentials", "staging"))

	require.NoError(t, store.Delete(context.Background(), "aws://prod/credentials"))

	_, err := os.Stat(filepath.Join(root, "aws", "prod"))
	assert.True(t, os.IsNotExist(err))

	got, err := store.Get(context.Background(), "aws://staging/credentials")
	require.NoError(t, err)
	assert.Equal(t, "staging", got)

	_, err = os.Stat(root)
	require.NoError(t, err)
}
