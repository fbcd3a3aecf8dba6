package domain

import (
	"fmt"
	"strings"
)

type ProviderID string

const ProviderAWS ProviderID = "aws"

type Provider struct {
	ID          ProviderID `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
}

// SupportedProviders lists every provider the broker can host. Only one
// ships today.
func SupportedProviders() []Provider {
	return []Provider{
		{ID: ProviderAWS, Name: "Amazon Web Services", Description: "AWS cloud services"},
	}
}

// ParseProvider matches raw case-insensitively against the supported set.
func ParseProvider(raw string) (ProviderID, error) {
	normalized := ProviderID(strings.ToLower(strings.TrimSpace(raw)))
	for _, provider := range SupportedProviders() {
		if provider.ID == normalized {
			return provider.ID, nil
		}
	}

	return "", fmt.Errorf("%w: only %s is supported, got %q", ErrUnsupportedProvider, ProviderAWS, raw)
}
