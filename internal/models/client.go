package models

import (
	"strings"
	"time"
)

// ApiClient represents an authenticated API client (an LMS front-end, an admin tool)
type ApiClient struct {
	ID          int               `json:"id"`
	Name        string            `json:"name"`
	KeyID       string            `json:"key_id"`
	SecretHash  string            `json:"-"` // bcrypt hash, never serialize
	IsActive    bool              `json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
	LastUsedAt  *time.Time        `json:"last_used_at,omitempty"`
	Permissions []string          `json:"permissions"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// HasPermission checks if client has specific permission
// Supports wildcard permissions like "profiles:*"
func (c *ApiClient) HasPermission(required string) bool {
	if c == nil || !c.IsActive {
		return false
	}

	for _, perm := range c.Permissions {
		if perm == required || perm == "*" {
			return true
		}

		// "profiles:*" matches "profiles:read"
		if strings.HasSuffix(perm, ":*") {
			prefix := strings.TrimSuffix(perm, "*")
			if strings.HasPrefix(required, prefix) {
				return true
			}
		}
	}

	return false
}

// SplitApiKey splits a "psv_<keyID>.<secret>" key into its lookup id and secret
func SplitApiKey(key string) (keyID, secret string, ok bool) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "psv_")
	keyID, secret, ok = strings.Cut(key, ".")
	if !ok || keyID == "" || secret == "" {
		return "", "", false
	}
	return keyID, secret, true
}
