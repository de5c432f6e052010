package session

import "sync"

// State is the durable part of a remembered session. The refresh token
// is deliberately absent: it lives only in the HttpOnly cookie jar.
type State struct {
	AccessToken string `json:"accessToken"`
	User        *User  `json:"user"`
}

// Store persists session state across restarts when the user chose
// "remember me". Implementations may write a file, a keychain, or
// browser storage in a wasm build.
type Store interface {
	Load() (State, bool)
	Save(State) error
	Clear() error
}

// MemoryStore is a Store for tests and for embedding hosts that manage
// persistence themselves.
type MemoryStore struct {
	mu    sync.Mutex
	state State
	set   bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load() (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.set
}

func (s *MemoryStore) Save(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state, s.set = st, true
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state, s.set = State{}, false
	return nil
}
