package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-filing/internal/apikey"
	"github.com/smallbiznis/valora-filing/internal/config"
)

const apiKeyIDKey = "api_key_id"

// Auth guards the gateway with argon2id-hashed API keys.
type Auth struct {
	keys *apikey.Keyring

	mu       sync.RWMutex
	verified map[string]string
}

// NewAuth builds the guard from API_KEY_HASHES. With no records configured every
// request is let through.
func NewAuth(cfg config.Config) (*Auth, error) {
	keys, err := apikey.NewKeyring(cfg.APIKeyHashes)
	if err != nil {
		return nil, err
	}
	return &Auth{keys: keys, verified: map[string]string{}}, nil
}

// RequireAPIKey accepts the key from X-API-Key or an "ApiKey"/"Bearer" Authorization header.
func (m *Auth) RequireAPIKey(c *gin.Context) {
	if m == nil || !m.keys.Enabled() {
		c.Next()
		return
	}
	key := presentedKey(c.Request)
	if key == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_api_key", "error_description": "API key required."})
		return
	}
	fingerprint := fingerprintOf(key)
	id, ok := m.known(fingerprint)
	if !ok {
		if id, ok = m.keys.Match(key); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_api_key", "error_description": "Invalid API key."})
			return
		}
		m.remember(fingerprint, id)
	}
	c.Set(apiKeyIDKey, id)
	c.Next()
}

// Verified keys are remembered by digest so argon2 runs once per key.
func (m *Auth) known(fingerprint string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.verified[fingerprint]
	return id, ok
}

func (m *Auth) remember(fingerprint, id string) {
	m.mu.Lock()
	m.verified[fingerprint] = id
	m.mu.Unlock()
}

func fingerprintOf(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func presentedKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if strings.EqualFold(parts[0], "Bearer") || strings.EqualFold(parts[0], "ApiKey") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
