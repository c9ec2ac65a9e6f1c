package emrcore

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

const anonymousIdentity = "anon"

// Session holds the bearer token and the wrapped file key for the signed-in
// user. It is shared by the client and the asset pipeline and is safe for
// concurrent use.
type Session struct {
	mu             sync.RWMutex
	token          string
	wrappedFileKey string
	onUnauthorized func()
}

// NewSession returns an empty, signed-out session.
func NewSession() *Session {
	return &Session{}
}

// SetToken replaces the bearer token. An empty token signs out.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Token returns the current bearer token.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetWrappedFileKey stores the wrapped file key delivered at sign-in.
func (s *Session) SetWrappedFileKey(key string) {
	s.mu.Lock()
	s.wrappedFileKey = key
	s.mu.Unlock()
}

// WrappedFileKey returns the stored wrapped file key, or "".
func (s *Session) WrappedFileKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wrappedFileKey
}

// SetOnUnauthorized registers the callback run after a 401 clears the token.
func (s *Session) SetOnUnauthorized(fn func()) {
	s.mu.Lock()
	s.onUnauthorized = fn
	s.mu.Unlock()
}

// Logout clears the token and the wrapped file key.
func (s *Session) Logout() {
	s.mu.Lock()
	s.token = ""
	s.wrappedFileKey = ""
	s.mu.Unlock()
}

// identity is the token-derived part of the coalescing key. The raw token
// never appears in keys or logs.
func (s *Session) identity() string {
	token := s.Token()
	if token == "" {
		return anonymousIdentity
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// expire clears the token and runs the unauthorized callback outside the lock.
func (s *Session) expire() {
	s.mu.Lock()
	s.token = ""
	fn := s.onUnauthorized
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}
