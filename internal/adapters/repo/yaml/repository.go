// Package yaml stores accounts in the "aws_accounts:" YAML layout. Key pairs
// written inline in that file are served by InlineSecrets under
// "yaml://<account>/credentials" references.
package yaml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/bnema/cloudwhisper/internal/ports"
	yaml "gopkg.in/yaml.v3"
)

const (
	inlineScheme    = "yaml://"
	inlineSuffix    = "/credentials"
	fileMode        = 0o600
	dirMode         = 0o700
	tempFilePattern = ".accounts-*.yaml.tmp"
)

var errForeignKey = errors.New("secret key is not an inline yaml reference")

type fileSchema struct {
	Accounts map[string]accountSchema `yaml:"aws_accounts"`
}

type accountSchema struct {
	Name          string `yaml:"name,omitempty"`
	Region        string `yaml:"region,omitempty"`
	AccessKey     string `yaml:"access_key,omitempty"`
	SecretKey     string `yaml:"secret_key,omitempty"`
	SessionToken  string `yaml:"session_token,omitempty"`
	Profile       string `yaml:"profile,omitempty"`
	Description   string `yaml:"description,omitempty"`
	CredentialRef string `yaml:"credential_ref,omitempty"`
}

func (a accountSchema) hasInlineKeys() bool {
	return strings.TrimSpace(a.AccessKey) != "" && strings.TrimSpace(a.SecretKey) != ""
}

type Repository struct {
	path string
	mu   sync.RWMutex
}

var _ ports.AccountStore = (*Repository)(nil)

func NewRepository(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("accounts path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve accounts path: %w", err)
	}

	return &Repository{path: filepath.Clean(absPath)}, nil
}

// IsYAMLPath reports whether path names a file this package should own.
func IsYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// InlineRef is the credential reference for keys kept inline for id.
func InlineRef(id domain.AccountID) string {
	return inlineScheme + string(id) + inlineSuffix
}

func (r *Repository) Path() string {
	return r.path
}

func (r *Repository) GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.read()
	if err != nil {
		return domain.Account{}, err
	}

	entry, ok := file.Accounts[string(id)]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return fromSchema(id, entry), nil
}

func (r *Repository) List(ctx context.Context) ([]domain.Account, error) {
	set, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}

	return set.Sorted(), nil
}

func (r *Repository) Load(ctx context.Context) (domain.AccountSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.read()
	if err != nil {
		return nil, err
	}

	set := make(domain.AccountSet, len(file.Accounts))
	for id, entry := range file.Accounts {
		set[domain.AccountID(id)] = fromSchema(domain.AccountID(id), entry)
	}

	return set, nil
}

// Save upserts account, keeping any inline key pair already on file.
func (r *Repository) Save(ctx context.Context, account domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := account.Validate(); err != nil {
		return fmt.Errorf("validate account: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.read()
	if err != nil {
		return err
	}

	key := string(account.ID)
	file.Accounts[key] = toSchema(account, file.Accounts[key])

	return r.write(file)
}

func (r *Repository) Delete(ctx context.Context, id domain.AccountID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.read()
	if err != nil {
		return err
	}
	if _, ok := file.Accounts[string(id)]; !ok {
		return domain.ErrAccountNotFound
	}
	delete(file.Accounts, string(id))

	return r.write(file)
}

// Replace rewrites the mapping. Inline keys survive for ids that remain.
func (r *Repository) Replace(ctx context.Context, accounts domain.AccountSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.read()
	if err != nil {
		return err
	}

	next := fileSchema{Accounts: make(map[string]accountSchema, len(accounts))}
	for id, account := range accounts {
		if err := account.Validate(); err != nil {
			return fmt.Errorf("validate account %q: %w", id, err)
		}
		next.Accounts[string(id)] = toSchema(account, current.Accounts[string(id)])
	}

	return r.write(next)
}

func (r *Repository) read() (fileSchema, error) {
	file := fileSchema{Accounts: map[string]accountSchema{}}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return file, nil
		}
		return fileSchema{}, fmt.Errorf("read accounts file: %w", err)
	}

	if err := yaml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode accounts file: %w", err)
	}
	if file.Accounts == nil {
		file.Accounts = map[string]accountSchema{}
	}

	return file, nil
}

func (r *Repository) write(file fileSchema) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create accounts directory: %w", err)
	}

	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode accounts file: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp accounts file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp accounts file: %w", err)
	}
	if err := tempFile.Chmod(fileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp accounts file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp accounts file: %w", err)
	}
	if err := os.Rename(tempName, r.path); err != nil {
		return fmt.Errorf("replace accounts file: %w", err)
	}
	cleanup = false

	return nil
}

func fromSchema(id domain.AccountID, entry accountSchema) domain.Account {
	ref := entry.CredentialRef
	if ref == "" && entry.hasInlineKeys() {
		ref = InlineRef(id)
	}

	return domain.Account{
		ID:            id,
		Name:          entry.Name,
		Provider:      domain.ProviderAWS,
		Region:        entry.Region,
		CredentialRef: ref,
		Profile:       entry.Profile,
		Description:   entry.Description,
	}
}

func toSchema(account domain.Account, existing accountSchema) accountSchema {
	entry := accountSchema{
		Name:          account.Name,
		Region:        account.Region,
		AccessKey:     existing.AccessKey,
		SecretKey:     existing.SecretKey,
		SessionToken:  existing.SessionToken,
		Profile:       account.Profile,
		Description:   account.Description,
		CredentialRef: account.CredentialRef,
	}
	if entry.CredentialRef == InlineRef(account.ID) {
		entry.CredentialRef = ""
	}

	return entry
}

func parseInlineRef(key string) (domain.AccountID, bool) {
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, inlineScheme) || !strings.HasSuffix(key, inlineSuffix) {
		return "", false
	}

	id := strings.TrimSuffix(strings.TrimPrefix(key, inlineScheme), inlineSuffix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}

	return domain.AccountID(id), true
}
