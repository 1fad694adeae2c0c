package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTokenServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProvider_Token_CachesPerDomain(t *testing.T) {
	var calls atomic.Int32
	srv := newTokenServer(t, &calls)

	p := NewProvider(map[string]DomainConfig{
		"ADM": {TokenURL: srv.URL, ClientID: "gateway", ClientSecret: "s3cret"},
	})

	for i := 0; i < 3; i++ {
		tok, err := p.Token(t.Context(), "ADM")
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "tok-123" {
			t.Fatalf("expected tok-123, got %q", tok)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected one token request, got %d", n)
	}
}

func TestProvider_Token_UnknownDomain(t *testing.T) {
	p := NewProvider(nil)
	tok, err := p.Token(t.Context(), "OPS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "" {
		t.Errorf("expected no token, got %q", tok)
	}
}

func TestProvider_Token_EndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewProvider(map[string]DomainConfig{"ADM": {TokenURL: srv.URL, ClientID: "x"}})
	if _, err := p.Token(t.Context(), "ADM"); err == nil {
		t.Fatal("expected error from failing token endpoint")
	}
}

// hangingTokenServer accepts token requests and never answers them until
// the test ends.
func hangingTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return srv
}

func TestProvider_Token_CallerDeadline(t *testing.T) {
	srv := hangingTokenServer(t)
	p := NewProvider(map[string]DomainConfig{"ADM": {TokenURL: srv.URL, ClientID: "x"}})

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Token(ctx, "ADM")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Token returned after %v", elapsed)
	}
}

func TestProvider_Token_EndpointTimeout(t *testing.T) {
	srv := hangingTokenServer(t)
	p := NewProvider(map[string]DomainConfig{"ADM": {TokenURL: srv.URL, ClientID: "x"}})
	p.SetTimeout(100 * time.Millisecond)

	start := time.Now()
	_, err := p.Token(context.Background(), "ADM")
	if err == nil {
		t.Fatal("expected error from hung token endpoint")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Token returned after %v", elapsed)
	}
}

func TestStatic(t *testing.T) {
	s := Static{"ADM": "abc"}
	if tok, _ := s.Token(t.Context(), "ADM"); tok != "abc" {
		t.Errorf("got %q", tok)
	}
	if tok, _ := None.Token(t.Context(), "ADM"); tok != "" {
		t.Errorf("None returned %q", tok)
	}
}
