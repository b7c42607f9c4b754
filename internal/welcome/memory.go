package welcome

import (
	"context"
	"sort"
	"sync"
	"time"
)

type scopeKey struct {
	guildID string
	kind    Kind
}

type countKey struct {
	guildID   string
	greeterID string
}

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and
// storage-free runs; the Postgres store in internal/database is the
// durable implementation.
type MemoryStore struct {
	mu            sync.Mutex
	settings      map[scopeKey]Settings
	templates     map[scopeKey][]Template
	seq           map[scopeKey]int
	notifications map[string]Notification
	greeters      map[string]map[string]struct{}
	counts        map[countKey]int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings:      make(map[scopeKey]Settings),
		templates:     make(map[scopeKey][]Template),
		seq:           make(map[scopeKey]int),
		notifications: make(map[string]Notification),
		greeters:      make(map[string]map[string]struct{}),
		counts:        make(map[countKey]int),
	}
}

func (m *MemoryStore) GetSettings(ctx context.Context, guildID string, kind Kind) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.settings[scopeKey{guildID, kind}]
	if !ok {
		return nil, ErrNotFound
	}

	return &s, nil
}

func (m *MemoryStore) PutSettings(ctx context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings[scopeKey{s.GuildID, s.Kind}] = s
	return nil
}

func (m *MemoryStore) InsertTemplate(ctx context.Context, guildID string, kind Kind, body string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopeKey{guildID, kind}
	m.seq[key]++
	id := m.seq[key]
	m.templates[key] = append(m.templates[key], Template{ID: id, Body: body})

	return id, nil
}

func (m *MemoryStore) DeleteTemplate(ctx context.Context, guildID string, kind Kind, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopeKey{guildID, kind}
	for i, t := range m.templates[key] {
		if t.ID == id {
			m.templates[key] = append(m.templates[key][:i], m.templates[key][i+1:]...)
			return nil
		}
	}

	return ErrNotFound
}

func (m *MemoryStore) ListTemplates(ctx context.Context, guildID string, kind Kind) ([]Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.templates[scopeKey{guildID, kind}]
	out := make([]Template, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (m *MemoryStore) PutNotification(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notifications[n.ID] = n
	return nil
}

func (m *MemoryStore) GetNotification(ctx context.Context, id string) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}

	return &n, nil
}

func (m *MemoryStore) AddGreeter(ctx context.Context, notificationID, greeterID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notifications[notificationID]; !ok {
		return false, ErrNotFound
	}

	set, ok := m.greeters[notificationID]
	if !ok {
		set = make(map[string]struct{})
		m.greeters[notificationID] = set
	}

	if _, present := set[greeterID]; present {
		return false, nil
	}

	set[greeterID] = struct{}{}
	return true, nil
}

func (m *MemoryStore) CountGreeters(ctx context.Context, notificationID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.greeters[notificationID]), nil
}

func (m *MemoryStore) PurgeNotifications(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for id, n := range m.notifications {
		if n.ExpiresAt != nil && !before.Before(*n.ExpiresAt) {
			delete(m.notifications, id)
			delete(m.greeters, id)
			purged++
		}
	}

	return purged, nil
}

func (m *MemoryStore) IncrementGreetCount(ctx context.Context, guildID, greeterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts[countKey{guildID, greeterID}]++
	return nil
}

func (m *MemoryStore) GetGreetCount(ctx context.Context, guildID, greeterID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.counts[countKey{guildID, greeterID}], nil
}
