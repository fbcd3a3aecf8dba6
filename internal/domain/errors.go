package domain

import "errors"

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrSecretNotFound      = errors.New("secret not found")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrWorkerUnavailable   = errors.New("worker unavailable")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrNoBackend           = errors.New("no analysis backend configured")
)
