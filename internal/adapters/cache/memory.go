package cache

import (
	"context"
	"path"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache - кэш в памяти процесса. Используется, когда Redis не настроен,
// и в тестах.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache создает кэш; cleanupInterval - период удаления истекших ключей
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &MemoryCache{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return nil, interfaces.ErrCacheMiss
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, interfaces.ErrCacheMiss
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	data := make([]byte, len(value))
	copy(data, value)
	if expiration <= 0 {
		expiration = gocache.NoExpiration
	}
	m.items.Set(key, data, expiration)
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

// DeleteByPattern поддерживает тот же glob-синтаксис, что и SCAN MATCH в Redis ("catalog:*")
func (m *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	for key := range m.items.Items() {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return err
		}
		if matched {
			m.items.Delete(key)
		}
	}
	return nil
}

func (m *MemoryCache) Close() error {
	m.items.Flush()
	return nil
}
