package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsOnly(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if c.Server.Addr != ":8080" || c.Storage.Driver != "fs" || c.Cache.Driver != "memory" {
		t.Fatalf("defaults inesperados: %+v", c)
	}
	if c.CacheTTL() != 2*time.Minute || c.RegisterTimeout() != 30*time.Second {
		t.Fatalf("duraciones default mal parseadas")
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
app:
  env: prod
server:
  addr: ":9090"
storage:
  driver: memory
bootstrap:
  apply: true
  file: manifest.yaml
  register_timeout: 5s
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("LOG_LEVEL", "DEBUG")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.App.Env != "prod" {
		t.Fatalf("app.env = %q", c.App.Env)
	}
	// env le gana al yaml
	if c.Server.Addr != ":7070" {
		t.Fatalf("server.addr = %q", c.Server.Addr)
	}
	if c.Log.Level != "debug" {
		t.Fatalf("log.level = %q", c.Log.Level)
	}
	if c.RegisterTimeout() != 5*time.Second {
		t.Fatalf("register timeout = %v", c.RegisterTimeout())
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"storage driver desconocido", func(c *Config) { c.Storage.Driver = "oracle" }},
		{"postgres sin dsn", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"redis sin addr", func(c *Config) { c.Cache.Driver = "redis" }},
		{"bootstrap apply sin file", func(c *Config) { c.Bootstrap.Apply = true; c.Bootstrap.File = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Load("")
			if err != nil {
				t.Fatal(err)
			}
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatal("Validate aceptó una config inválida")
			}
		})
	}
}

func TestBadDurationFallsBack(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	c.Cache.TTL = "no-es-duracion"
	c.Storage.Postgres.ConnMaxLifetime = "-5m"
	if c.CacheTTL() != 2*time.Minute {
		t.Fatalf("CacheTTL = %v", c.CacheTTL())
	}
	if c.PGConnMaxLifetime() != 30*time.Minute {
		t.Fatalf("PGConnMaxLifetime = %v", c.PGConnMaxLifetime())
	}
}
