package oauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/chanscope/db"
)

type memStore struct {
	mu    sync.Mutex
	creds map[string]db.Credential
	puts  int
}

func (m *memStore) GetCredential(_ context.Context, p string) (*db.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[p]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &c, nil
}

func (m *memStore) UpsertCredential(_ context.Context, c db.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[c.Provider] = c
	m.puts++
	return nil
}

func newStore(c db.Credential) *memStore {
	return &memStore{creds: map[string]db.Credential{c.Provider: c}}
}

func TestCheckOnceOutsideWindow(t *testing.T) {
	store := newStore(db.Credential{Provider: "discord", Token: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)})
	called := false
	r := &Refresher{Store: store, Provider: "discord", Window: 30 * time.Minute, Refresh: func(context.Context, string) (*oauth2.Token, error) {
		called = true
		return nil, nil
	}}
	did, err := r.CheckOnce(context.Background())
	if err != nil || did || called {
		t.Errorf("CheckOnce() = %v, %v (refresh called=%v), want no refresh", did, err, called)
	}
}

func TestCheckOnceWithinWindow(t *testing.T) {
	store := newStore(db.Credential{Provider: "discord", Token: "old", TokenType: "Bearer", RefreshToken: "old-refresh", Expiry: time.Now().Add(5 * time.Minute), Scope: "identify", Locale: "de"})
	newExpiry := time.Now().Add(2 * time.Hour)
	var notified db.Credential
	r := &Refresher{
		Store:    store,
		Provider: "discord",
		Window:   15 * time.Minute,
		Refresh: func(_ context.Context, rt string) (*oauth2.Token, error) {
			if rt != "old-refresh" {
				t.Errorf("refresh called with %q, want old-refresh", rt)
			}
			tok := &oauth2.Token{AccessToken: "new", RefreshToken: "new-refresh", Expiry: newExpiry}
			return tok.WithExtra(map[string]any{"scope": "identify guilds"}), nil
		},
		OnRefresh: func(c db.Credential) { notified = c },
	}
	did, err := r.CheckOnce(context.Background())
	if err != nil || !did {
		t.Fatalf("CheckOnce() = %v, %v, want refresh", did, err)
	}
	got := store.creds["discord"]
	if got.Token != "new" || got.RefreshToken != "new-refresh" || !got.Expiry.Equal(newExpiry) || got.Scope != "identify guilds" {
		t.Errorf("stored credential = %+v", got)
	}
	if got.TokenType != "Bearer" || got.Locale != "de" {
		t.Errorf("refresh lost unrelated fields: %+v", got)
	}
	if notified.Token != "new" {
		t.Errorf("OnRefresh got %+v", notified)
	}
}

func TestCheckOnceKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	store := newStore(db.Credential{Provider: "discord", Token: "old", RefreshToken: "keep", Expiry: time.Now().Add(time.Minute)})
	r := &Refresher{Store: store, Provider: "discord", Refresh: func(context.Context, string) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "new", Expiry: time.Now().Add(time.Hour)}, nil
	}}
	if _, err := r.CheckOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := store.creds["discord"].RefreshToken; got != "keep" {
		t.Errorf("RefreshToken = %q, want keep", got)
	}
}

func TestCheckOnceSkips(t *testing.T) {
	tests := []struct {
		name  string
		store *memStore
	}{
		{"missing", &memStore{creds: map[string]db.Credential{}}},
		{"no refresh token", newStore(db.Credential{Provider: "discord", Token: "a", Expiry: time.Now()})},
		{"no expiry", newStore(db.Credential{Provider: "discord", Token: "a", RefreshToken: "r"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Refresher{Store: tt.store, Provider: "discord", Refresh: func(context.Context, string) (*oauth2.Token, error) {
				t.Error("refresh should not be called")
				return nil, nil
			}}
			if did, err := r.CheckOnce(context.Background()); did || err != nil {
				t.Errorf("CheckOnce() = %v, %v", did, err)
			}
		})
	}
}

func TestCheckOnceRefreshError(t *testing.T) {
	store := newStore(db.Credential{Provider: "discord", Token: "a", RefreshToken: "r", Expiry: time.Now()})
	boom := errors.New("boom")
	r := &Refresher{Store: store, Provider: "discord", Refresh: func(context.Context, string) (*oauth2.Token, error) { return nil, boom }}
	if _, err := r.CheckOnce(context.Background()); !errors.Is(err, boom) {
		t.Errorf("CheckOnce() error = %v, want boom", err)
	}
	if store.puts != 0 {
		t.Error("credential persisted after a failed refresh")
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	store := newStore(db.Credential{Provider: "discord", Token: "a", RefreshToken: "r", Expiry: time.Now()})
	var mu sync.Mutex
	calls := 0
	r := &Refresher{Store: store, Provider: "discord", Interval: 20 * time.Millisecond, Refresh: func(context.Context, string) (*oauth2.Token, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return &oauth2.Token{AccessToken: "b", Expiry: time.Now()}, nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	time.Sleep(150 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	seen := calls
	mu.Unlock()
	if seen == 0 {
		t.Fatal("refresher never ran")
	}
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != seen {
		t.Errorf("refresher kept running after cancel: %d -> %d", seen, calls)
	}
}
