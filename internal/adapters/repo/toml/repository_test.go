package toml

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, accountsPath string) *Repository {
	t.Helper()

	config := viper.New()
	config.Set(AccountsPathKey, accountsPath)

	repo, err := NewRepository(config)
	require.NoError(t, err)
	return repo
}

func TestRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "accounts.toml"))

	first := domain.Account{
		ID:            "prod",
		Name:          "Production",
		Provider:      domain.ProviderAWS,
		Region:        "eu-west-1",
		CredentialRef: "aws://prod/credentials",
		Description:   "main account",
	}
	second := domain.Account{
		ID:       "dev",
		Name:     "Development",
		Provider: domain.ProviderAWS,
		Region:   "us-east-2",
		Profile:  "dev-profile",
	}

	require.NoError(t, repo.Save(context.Background(), first))
	require.NoError(t, repo.Save(context.Background(), second))

	got, err := repo.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	accounts, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.Account{first, second}, accounts)
}

func TestRepositorySaveOverwritesExistingAccount(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "accounts.toml"))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, domain.Account{ID: "prod", Region: "us-east-1"}))
	require.NoError(t, repo.Save(ctx, domain.Account{ID: "prod", Region: "ap-south-1"}))

	accounts, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "ap-south-1", accounts[0].Region)
	assert.Equal(t, domain.ProviderAWS, accounts[0].Provider)
}

func TestRepositorySaveRejectsUnsupportedProvider(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "accounts.toml"))

	err := repo.Save(context.Background(), domain.Account{ID: "x", Provider: "azure"})
	require.ErrorIs(t, err, domain.ErrUnsupportedProvider)
}

func TestRepositoryDelete(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "accounts.toml"))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, domain.Account{ID: "prod"}))
	require.NoError(t, repo.Save(ctx, domain.Account{ID: "dev"}))

	require.NoError(t, repo.Delete(ctx, "prod"))

	_, err := repo.GetByID(ctx, "prod")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	err = repo.Delete(ctx, "prod")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	accounts, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, domain.AccountID("dev"), accounts[0].ID)
}

func TestRepositoryLoadAndReplace(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "accounts.toml"))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, domain.Account{ID: "stale"}))

	replacement := domain.NewAccountSet([]domain.Account{
		{ID: "prod", Provider: domain.ProviderAWS, Region: "eu-west-1"},
		{ID: "default", Provider: domain.ProviderAWS},
	})
	require.NoError(t, repo.Replace(ctx, replacement))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, replacement, loaded)
}

func TestRepositoryBackwardCompatibleWhenProviderMissing(t *testing.T) {
	t.Parallel()

	accountsPath := filepath.Join(t.TempDir(), "accounts.toml")
	require.NoError(t, os.WriteFile(accountsPath, []byte(strings.Join([]string{
		"version = 1",
		"",
		"[[accounts]]",
		"id = \"prod\"",
		"name = \"Production\"",
		"",
	}, "\n")), 0o600))

	repo := newTestRepository(t, accountsPath)

	account, err := repo.GetByID(context.Background(), "prod")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderAWS, account.Provider)
	assert.Empty(t, account.Region)
}

func TestRepositorySaveCreatesDefaultPathAndEnforcesPermissions(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)

	repo, err := NewRepository(viper.New())
	require.NoError(t, err)

	require.NoError(t, repo.Save(context.Background(), domain.Account{ID: "prod", Name: "Production"}))

	accountsPath := filepath.Join(homeDir, ".cloudwhisper", "accounts.toml")
	assert.Equal(t, accountsPath, repo.Path())
	info, err := os.Stat(accountsPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRepositoryMissingFileBehaviors(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "missing", "accounts.toml"))

	accounts, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)

	_, err = repo.GetByID(context.Background(), "prod")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestRepositoryListMalformedTOMLReturnsError(t *testing.T) {
	t.Parallel()

	accountsPath := filepath.Join(t.TempDir(), "accounts.toml")
	require.NoError(t, os.WriteFile(accountsPath, []byte("accounts = ["), 0o600))

	repo := newTestRepository(t, accountsPath)

	_, err := repo.List(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "decode accounts file")
}

func TestRepositorySaveCanceledContextReturnsContextError(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "accounts.toml"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.Save(ctx, domain.Account{ID: "prod"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRepositoryConcurrentSavesAcrossInstancesPreserveBothAccounts(t *testing.T) {
	t.Parallel()

	accountsPath := filepath.Join(t.TempDir(), "accounts.toml")
	repoA := newTestRepository(t, accountsPath)
	repoB := newTestRepository(t, accountsPath)

	const perRepoWrites = 50
	start := make(chan struct{})
	errCh := make(chan error, perRepoWrites*2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		<-start
		for i := 0; i < perRepoWrites; i++ {
			errCh <- repoA.Save(context.Background(), domain.Account{ID: domain.AccountID("a-" + strconv.Itoa(i))})
		}
	}()

	go func() {
		defer wg.Done()
		<-start
		for i := 0; i < perRepoWrites; i++ {
			errCh <- repoB.Save(context.Background(), domain.Account{ID: domain.AccountID("b-" + strconv.Itoa(i))})
		}
	}()

	close(start)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	accounts, err := repoA.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, perRepoWrites*2)
}

func TestRepositorySaveSerializedTOMLIncludesVersion(t *testing.T) {
	t.Parallel()

	accountsPath := filepath.Join(t.TempDir(), "accounts.toml")
	repo := newTestRepository(t, accountsPath)

	require.NoError(t, repo.Save(context.Background(), domain.Account{ID: "prod", CredentialRef: "aws://prod/credentials"}))

	data, err := os.ReadFile(accountsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version = 1")
	assert.Contains(t, string(data), "aws://prod/credentials")
}

func TestRepositoryFutureSchemaVersionReturnsError(t *testing.T) {
	t.Parallel()

	accountsPath := filepath.Join(t.TempDir(), "accounts.toml")
	require.NoError(t, os.WriteFile(accountsPath, []byte("version = 999\n\naccounts = []\n"), 0o600))

	repo := newTestRepository(t, accountsPath)

	_, err := repo.List(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "unsupported accounts schema version")
}
