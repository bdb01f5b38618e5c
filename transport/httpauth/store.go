package httpauth

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "mcpcore"
	keyringAccount = "bearer-tokens"
)

// Token is an opaque bearer-token credential bound to a server URL. The
// core never inspects Value beyond attaching it to outbound requests as
// transport metadata (§6 Environment contract, §3 Session).
type Token struct {
	ServerURL string `json:"server_url"`
	Value     string `json:"value"`
}

// Store persists Tokens in the OS keychain as a single JSON-encoded map
// under one keyring entry, keyed by server URL. Every call re-reads that
// entry rather than trusting an in-memory cache, so a write always
// merges against the latest persisted state instead of a snapshot taken
// whenever the Store happened to be constructed — important because the
// OS keyring, not this process, is the thing two Store instances (e.g.
// two CLI invocations) actually share.
type Store struct {
	mu sync.Mutex
}

// NewStore constructs a Store, failing only if the keyring backend itself
// is unreachable.
func NewStore() (*Store, error) {
	s := &Store{}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get retrieves the token for serverURL, returning (nil, nil) if unset.
func (s *Store) Get(serverURL string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.load()
	if err != nil {
		return nil, err
	}
	tok, ok := tokens[serverURL]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

// Put stores tok under its server URL, replacing any prior value. It
// reloads the current keyring contents immediately before writing so a
// concurrent Put for a different server URL (from this or another
// process) since the last load is preserved rather than overwritten.
func (s *Store) Put(tok *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.load()
	if err != nil {
		return err
	}
	tokens[tok.ServerURL] = *tok
	return s.save(tokens)
}

// Delete removes the token for serverURL, if any. A missing entry is not
// an error.
func (s *Store) Delete(serverURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := tokens[serverURL]; !ok {
		return nil
	}
	delete(tokens, serverURL)
	return s.save(tokens)
}

// List returns every stored token, ordered by server URL.
func (s *Store) List() ([]*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.load()
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(tokens))
	for u := range tokens {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	out := make([]*Token, 0, len(urls))
	for _, u := range urls {
		tok := tokens[u]
		out = append(out, &tok)
	}
	return out, nil
}

// load fetches and decodes the current keyring entry, treating a missing
// entry as an empty store. Callers hold s.mu.
func (s *Store) load() (map[string]Token, error) {
	data, err := keyring.Get(keyringService, keyringAccount)
	if err != nil {
		if err == keyring.ErrNotFound {
			return make(map[string]Token), nil
		}
		return nil, fmt.Errorf("httpauth: keyring get: %w", err)
	}

	tokens := make(map[string]Token)
	if data != "" {
		if err := json.Unmarshal([]byte(data), &tokens); err != nil {
			return nil, fmt.Errorf("httpauth: parse token store: %w", err)
		}
	}
	return tokens, nil
}

// save serializes tokens back into the single keyring entry. Callers
// hold s.mu.
func (s *Store) save(tokens map[string]Token) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("httpauth: marshal token store: %w", err)
	}
	if err := keyring.Set(keyringService, keyringAccount, string(data)); err != nil {
		return fmt.Errorf("httpauth: keyring set: %w", err)
	}
	return nil
}
