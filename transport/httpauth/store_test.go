package httpauth

import (
	"testing"

	"github.com/zalando/go-keyring"
)

func TestMain(m *testing.M) {
	keyring.MockInit()
	m.Run()
}

func TestStorePutGetRoundTrips(t *testing.T) {
	s, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	tok := &Token{ServerURL: "https://mcp.example.com", Value: "abc123"}
	if err := s.Put(tok); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(tok.ServerURL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Value != "abc123" {
		t.Fatalf("unexpected token %+v", got)
	}
}

func TestStoreGetMissingReturnsNilNil(t *testing.T) {
	s, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	got, err := s.Get("https://never-stored.example.com")
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil) for a missing token, got (%v, %v)", got, err)
	}
}

func TestStoreDeleteRemovesToken(t *testing.T) {
	s, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	tok := &Token{ServerURL: "https://delete-me.example.com", Value: "xyz"}
	if err := s.Put(tok); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(tok.ServerURL); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got, err := s.Get(tok.ServerURL)
	if err != nil || got != nil {
		t.Fatalf("expected the token to be gone after Delete, got (%v, %v)", got, err)
	}
}

func TestStoreListReturnsAllStoredTokens(t *testing.T) {
	s, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	a := &Token{ServerURL: "https://list-a.example.com", Value: "a"}
	b := &Token{ServerURL: "https://list-b.example.com", Value: "b"}
	if err := s.Put(a); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if err := s.Put(b); err != nil {
		t.Fatalf("Put b: %v", err)
	}

	tokens, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	seen := map[string]bool{}
	for _, tok := range tokens {
		seen[tok.ServerURL] = true
	}
	if !seen[a.ServerURL] || !seen[b.ServerURL] {
		t.Fatalf("expected both stored URLs in List, got %+v", tokens)
	}
}

func TestStorePutTwiceDoesNotDuplicateListEntry(t *testing.T) {
	s, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	tok := &Token{ServerURL: "https://repeat.example.com", Value: "v1"}
	if err := s.Put(tok); err != nil {
		t.Fatalf("Put 1: %v", err)
	}
	tok.Value = "v2"
	if err := s.Put(tok); err != nil {
		t.Fatalf("Put 2: %v", err)
	}

	tokens, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	count := 0
	for _, tk := range tokens {
		if tk.ServerURL == tok.ServerURL {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one list entry for a repeated URL, got %d", count)
	}
}
