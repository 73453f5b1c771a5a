package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sentinel store errors. Handlers translate these to status codes; anything
// else coming out of a Store is treated as the store being unavailable.
var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// Store is the document collection holding user records. A malformed id is
// reported as ErrNotFound by every adapter rather than leaking a
// driver-specific error. The matched return on the write operations reports
// whether any record had the given id; handlers decide what to do with a miss.
type Store interface {
	ListUsers(ctx context.Context) ([]*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, u *User) (*User, error)
	ReplaceUser(ctx context.Context, id, name, email string, age int) (matched bool, err error)
	PatchUser(ctx context.Context, id string, p UserPatch) (matched bool, err error)
	DeleteUser(ctx context.Context, id string) (matched bool, err error)
}

// Memory store, used by tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]*User
	byEmail map[string]string // email -> id
	order   []string          // ids in insertion order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: map[string]*User{}, byEmail: map[string]string{}}
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*User, 0, len(m.order))
	for _, id := range m.order {
		u := *m.users[id]
		out = append(out, &u)
	}
	return out, nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.byEmail[email]; ok {
		cp := *m.users[id]
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[u.Email]; ok {
		return nil, ErrDuplicateEmail
	}
	cp := *u
	cp.ID = uuid.NewString()
	cp.CreatedAt = time.Now().UTC()
	m.users[cp.ID] = &cp
	m.byEmail[cp.Email] = cp.ID
	m.order = append(m.order, cp.ID)
	out := cp
	return &out, nil
}

func (m *MemoryStore) ReplaceUser(ctx context.Context, id, name, email string, age int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return false, nil
	}
	if other, taken := m.byEmail[email]; taken && other != id {
		return false, ErrDuplicateEmail
	}
	delete(m.byEmail, u.Email)
	u.Name, u.Email, u.Age = name, email, age
	m.byEmail[email] = id
	return true, nil
}

func (m *MemoryStore) PatchUser(ctx context.Context, id string, p UserPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return false, nil
	}
	if p.Email != nil {
		if other, taken := m.byEmail[*p.Email]; taken && other != id {
			return false, ErrDuplicateEmail
		}
		delete(m.byEmail, u.Email)
		u.Email = *p.Email
		m.byEmail[u.Email] = id
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Age != nil {
		u.Age = *p.Age
	}
	if p.Password != nil {
		u.Password = *p.Password
	}
	return true, nil
}

func (m *MemoryStore) DeleteUser(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return false, nil
	}
	delete(m.byEmail, u.Email)
	delete(m.users, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// lifecycle helpers
func (m *MemoryStore) close() error { return nil }
func (m *MemoryStore) ping() bool   { return true }
