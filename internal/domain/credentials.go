package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Credentials is a direct key pair as kept in the secret store.
type Credentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token,omitempty"`
}

func (c Credentials) IsZero() bool {
	return strings.TrimSpace(c.AccessKeyID) == "" && strings.TrimSpace(c.SecretAccessKey) == ""
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.AccessKeyID) == "" {
		return fmt.Errorf("%w: access key id is empty", ErrInvalidCredentials)
	}
	if strings.TrimSpace(c.SecretAccessKey) == "" {
		return fmt.Errorf("%w: secret access key is empty", ErrInvalidCredentials)
	}

	return nil
}

func (c Credentials) Encode() (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}

	return string(data), nil
}

func ParseCredentials(raw string) (Credentials, error) {
	var creds Credentials
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}

	return creds, nil
}

func CredentialRefFor(provider ProviderID, id AccountID) string {
	return fmt.Sprintf("%s://%s/credentials", provider, id)
}

// SecretPath maps a reference such as "aws://prod/credentials" onto a
// slash-separated storage path ("aws/prod/credentials").
func SecretPath(ref string) string {
	ref = strings.TrimSpace(ref)
	if scheme, rest, ok := strings.Cut(ref, "://"); ok {
		return scheme + "/" + strings.TrimLeft(rest, "/")
	}

	return ref
}
