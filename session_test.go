package emrcore

import (
	"strings"
	"sync"
	"testing"
)

func TestSessionIdentity(t *testing.T) {
	s := NewSession()
	if s.identity() != anonymousIdentity {
		t.Errorf("Expected %q for no token, got %q", anonymousIdentity, s.identity())
	}

	s.SetToken("secret-token")
	id := s.identity()
	if id == anonymousIdentity || strings.Contains(id, "secret") {
		t.Errorf("Expected a digest identity, got %q", id)
	}
	if id != s.identity() {
		t.Error("Expected identity to be stable for the same token")
	}

	s.SetToken("other-token")
	if s.identity() == id {
		t.Error("Expected identity to change with the token")
	}
}

func TestSessionExpire(t *testing.T) {
	s := NewSession()
	s.SetToken("t")
	s.SetWrappedFileKey("wrapped")

	calls := 0
	s.SetOnUnauthorized(func() {
		calls++
		if s.Token() != "" {
			t.Error("Expected token cleared before callback")
		}
	})

	s.expire()

	if calls != 1 {
		t.Errorf("Expected callback once, got %d", calls)
	}
	if s.WrappedFileKey() != "wrapped" {
		t.Error("Expected expiry to keep the wrapped file key")
	}
}

func TestSessionLogout(t *testing.T) {
	s := NewSession()
	s.SetToken("t")
	s.SetWrappedFileKey("wrapped")

	s.Logout()

	if s.Token() != "" || s.WrappedFileKey() != "" {
		t.Error("Expected logout to clear token and file key")
	}
}

func TestSessionConcurrentAccess(t *testing.T) {
	s := NewSession()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.SetToken("a")
		}()
		go func() {
			defer wg.Done()
			_ = s.identity()
		}()
	}
	wg.Wait()
}
