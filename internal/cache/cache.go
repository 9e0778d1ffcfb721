// Package cache provee un cache chico de lecturas con backend memory
// (in-process) o redis. Lo usa el realm service para no golpear el store en
// cada existence-check durante registraciones.
package cache

import "time"

// Cache es la interfaz mínima: valores opacos en bytes.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

// Config selecciona el backend.
type Config struct {
	Driver     string // "memory" (default) | "redis"
	RedisAddr  string
	RedisDB    int
	DefaultTTL time.Duration
}

// New arma el cache según cfg. Driver desconocido cae a memory.
func New(cfg Config) Cache {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 2 * time.Minute
	}
	switch cfg.Driver {
	case "redis":
		return newRedis(cfg.RedisAddr, cfg.RedisDB)
	default:
		return newMemory(cfg.DefaultTTL)
	}
}
