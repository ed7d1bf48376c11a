package attachments

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"
)

type object struct {
	contentType string
	body        []byte
}

// MemoryStorage keeps objects in a map. SignedURL returns memory:// URLs
// that carry the expiry but are not servable.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]object), now: time.Now}
}

func (m *MemoryStorage) Put(_ context.Context, key, contentType string, body []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = object{contentType: contentType, body: append([]byte(nil), body...)}
	return nil
}

func (m *MemoryStorage) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	u := url.URL{Scheme: "memory", Path: "/" + key}
	u.RawQuery = url.Values{"expires": {strconv.FormatInt(m.now().Add(ttl).Unix(), 10)}}.Encode()
	return u.String(), nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

// Get returns a stored object's content type and a copy of its body.
func (m *MemoryStorage) Get(key string) (string, []byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	if !ok {
		return "", nil, false
	}
	return o.contentType, append([]byte(nil), o.body...), true
}

func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Check implements health.Probe; memory storage is always available.
func (m *MemoryStorage) Check(context.Context) error { return nil }
