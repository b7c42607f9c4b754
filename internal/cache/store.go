package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/glotchimo/herald/internal/welcome"
)

const (
	storeTTL    = 5 * time.Minute
	fallbackTTL = time.Minute
)

// Store is a read-through cache over a welcome.Store. Settings and
// template lists are the hot path (every join/leave reads them); redis
// sits in front of the database behind a circuit breaker, with an
// in-process fallback while redis is unavailable.
type Store struct {
	welcome.Store

	cache    *Cache
	breaker  *CircuitBreaker
	fallback *FallbackCache
	l        *slog.Logger
}

var _ welcome.Store = (*Store)(nil)

func NewStore(inner welcome.Store, cache *Cache, l *slog.Logger) *Store {
	return &Store{
		Store:    inner,
		cache:    cache,
		breaker:  NewCircuitBreaker(5, 30*time.Second),
		fallback: NewFallbackCache(4096),
		l:        l,
	}
}

func settingsKey(guildID string, kind welcome.Kind) string {
	return fmt.Sprintf("welcome:settings:%s:%s", guildID, kind)
}

func templatesKey(guildID string, kind welcome.Kind) string {
	return fmt.Sprintf("welcome:templates:%s:%s", guildID, kind)
}

func (s *Store) lookup(ctx context.Context, key string) []byte {
	if s.breaker.Allow() {
		data, err := s.cache.get(ctx, key)
		if err != nil {
			s.breaker.RecordFailure()
			s.l.Warn("cache read failed, consulting fallback", "key", key, "error", err)
		} else {
			s.breaker.RecordSuccess()
			if data != nil {
				return data
			}
			return nil
		}
	}

	data, ok := s.fallback.Get(key)
	if !ok {
		return nil
	}

	return data
}

func (s *Store) store(ctx context.Context, key string, data []byte) {
	if s.breaker.Allow() {
		if err := s.cache.set(ctx, key, data, storeTTL); err != nil {
			s.breaker.RecordFailure()
			s.l.Warn("cache write failed", "key", key, "error", err)
		} else {
			s.breaker.RecordSuccess()
		}
	}

	s.fallback.Set(key, data, fallbackTTL)
}

func (s *Store) invalidate(ctx context.Context, keys ...string) {
	if s.breaker.Allow() {
		if err := s.cache.del(ctx, keys...); err != nil {
			s.breaker.RecordFailure()
			s.l.Warn("cache invalidation failed", "keys", keys, "error", err)
		} else {
			s.breaker.RecordSuccess()
		}
	}

	for _, key := range keys {
		s.fallback.Delete(key)
	}
}

func (s *Store) GetSettings(ctx context.Context, guildID string, kind welcome.Kind) (*welcome.Settings, error) {
	key := settingsKey(guildID, kind)

	if data := s.lookup(ctx, key); data != nil {
		var settings welcome.Settings
		if err := json.Unmarshal(data, &settings); err == nil {
			return &settings, nil
		}
		s.invalidate(ctx, key)
	}

	settings, err := s.Store.GetSettings(ctx, guildID, kind)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(settings); err == nil {
		s.store(ctx, key, data)
	}

	return settings, nil
}

func (s *Store) PutSettings(ctx context.Context, settings welcome.Settings) error {
	if err := s.Store.PutSettings(ctx, settings); err != nil {
		return err
	}

	s.invalidate(ctx, settingsKey(settings.GuildID, settings.Kind))
	return nil
}

func (s *Store) ListTemplates(ctx context.Context, guildID string, kind welcome.Kind) ([]welcome.Template, error) {
	key := templatesKey(guildID, kind)

	if data := s.lookup(ctx, key); data != nil {
		var templates []welcome.Template
		if err := json.Unmarshal(data, &templates); err == nil {
			return templates, nil
		}
		s.invalidate(ctx, key)
	}

	templates, err := s.Store.ListTemplates(ctx, guildID, kind)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(templates); err == nil {
		s.store(ctx, key, data)
	}

	return templates, nil
}

func (s *Store) InsertTemplate(ctx context.Context, guildID string, kind welcome.Kind, body string) (int, error) {
	id, err := s.Store.InsertTemplate(ctx, guildID, kind, body)
	if err != nil {
		return 0, err
	}

	s.invalidate(ctx, templatesKey(guildID, kind))
	return id, nil
}

func (s *Store) DeleteTemplate(ctx context.Context, guildID string, kind welcome.Kind, id int) error {
	if err := s.Store.DeleteTemplate(ctx, guildID, kind, id); err != nil {
		return err
	}

	s.invalidate(ctx, templatesKey(guildID, kind))
	return nil
}
