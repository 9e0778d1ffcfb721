package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type mem struct{ c *gocache.Cache }

func newMemory(defaultTTL time.Duration) *mem {
	return &mem{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *mem) Get(key string) ([]byte, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	return b, true
}

func (m *mem) Set(key string, value []byte, ttl time.Duration) { m.c.Set(key, value, ttl) }
func (m *mem) Delete(key string)                               { m.c.Delete(key) }
