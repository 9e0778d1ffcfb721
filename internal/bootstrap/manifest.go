package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/metrics"
	"github.com/dropDatabas3/idbroker/internal/observability/logger"
)

// Manifest es el documento declarativo de la fase 3. Se aplica en orden de
// dependencia: realms, providers, services, clients, users. Re-aplicable en
// cada boot: todos los upserts son idempotentes y los users normalizan su
// estado de credenciales en cada corrida.
type Manifest struct {
	Realms    []core.Realm                `yaml:"realms"`
	Providers []core.ConfigurableProvider `yaml:"providers"`
	Services  []core.Service              `yaml:"services"`
	Clients   []core.ClientApp            `yaml:"clients"`
	Users     []ManifestUser              `yaml:"users"`
}

// ManifestUser es una cuenta interna declarada con password en claro; la
// aplicación la re-hashea, la marca confirmada y limpia keys pendientes.
type ManifestUser struct {
	Realm      string         `yaml:"realm"`
	Provider   string         `yaml:"provider"`
	Username   string         `yaml:"username"`
	Email      string         `yaml:"email"`
	Password   string         `yaml:"password"`
	Attributes map[string]any `yaml:"attributes"`
}

func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// applyManifest upserta el manifest completo. Cada entidad que falla se
// loguea y se cuenta; las entidades que referencian un realm o provider que
// falló antes en esta misma pasada se saltean sin intentar.
func (o *Orchestrator) applyManifest(ctx context.Context, m *Manifest) (applied, failed int) {
	log := logger.Named("bootstrap.manifest")
	fail := func(err error, fields ...zap.Field) {
		log.Warn("manifest item failed", append(fields, logger.Err(err))...)
		metrics.BootstrapItemsFailed.WithLabelValues("manifest").Inc()
		failed++
	}

	// realms que fallaron en esta pasada; los declarados y aplicados OK no
	// necesitan tracking aparte (la existencia se chequea igual más abajo)
	failedRealms := map[string]bool{}
	failedProviders := map[string]bool{}
	pkey := func(realm, provider string) string { return realm + "/" + provider }

	// ===== realms =====
	for _, r := range m.Realms {
		exists, err := o.realms.Exists(ctx, r.Slug)
		if err == nil {
			if exists {
				_, err = o.realms.Update(ctx, r.Slug, r)
			} else {
				_, err = o.realms.Add(ctx, r)
			}
		}
		if err != nil {
			fail(err, logger.Realm(r.Slug))
			failedRealms[r.Slug] = true
			continue
		}
		applied++
	}

	// ===== providers =====
	for _, cp := range m.Providers {
		if failedRealms[cp.Realm] {
			log.Warn("provider skipped, realm failed",
				logger.Realm(cp.Realm), logger.Provider(cp.Provider))
			metrics.BootstrapItemsFailed.WithLabelValues("manifest").Inc()
			failed++
			failedProviders[pkey(cp.Realm, cp.Provider)] = true
			continue
		}
		wantEnabled := cp.Enabled
		saved, err := o.upsertProvider(ctx, cp)
		if err != nil {
			fail(err, logger.Realm(cp.Realm), logger.Provider(cp.Provider))
			failedProviders[pkey(cp.Realm, cp.Provider)] = true
			continue
		}
		if wantEnabled && !saved.Registered {
			if err := o.registerOne(ctx, saved.Realm, saved.Provider); err != nil {
				fail(err, logger.Realm(saved.Realm), logger.Provider(saved.Provider))
				failedProviders[pkey(saved.Realm, saved.Provider)] = true
				continue
			}
		}
		applied++
	}

	// ===== services =====
	for _, s := range m.Services {
		if failedRealms[s.Realm] {
			log.Warn("service skipped, realm failed",
				logger.Realm(s.Realm), logger.Op("service:"+s.ServiceID))
			metrics.BootstrapItemsFailed.WithLabelValues("manifest").Inc()
			failed++
			continue
		}
		svc := s
		if err := o.store.Services().SaveService(ctx, &svc); err != nil {
			fail(err, logger.Realm(s.Realm), logger.Op("service:"+s.ServiceID))
			continue
		}
		applied++
	}

	// ===== clients =====
	for _, c := range m.Clients {
		if failedRealms[c.Realm] {
			log.Warn("client skipped, realm failed",
				logger.Realm(c.Realm), logger.ClientID(c.ClientID))
			metrics.BootstrapItemsFailed.WithLabelValues("manifest").Inc()
			failed++
			continue
		}
		cl := c
		if err := o.store.Clients().SaveClient(ctx, &cl); err != nil {
			fail(err, logger.Realm(c.Realm), logger.ClientID(c.ClientID))
			continue
		}
		applied++
	}

	// ===== users =====
	for _, u := range m.Users {
		if failedRealms[u.Realm] || failedProviders[pkey(u.Realm, u.Provider)] {
			log.Warn("user skipped, realm or provider failed",
				logger.Realm(u.Realm), logger.Provider(u.Provider))
			metrics.BootstrapItemsFailed.WithLabelValues("manifest").Inc()
			failed++
			continue
		}
		acc := core.InternalAccount{
			Realm:      u.Realm,
			Provider:   u.Provider,
			Username:   u.Username,
			Email:      u.Email,
			Attributes: u.Attributes,
		}
		if err := o.accounts.Normalize(ctx, &acc, u.Password); err != nil {
			fail(err, logger.Realm(u.Realm), logger.Provider(u.Provider))
			continue
		}
		applied++
	}

	return applied, failed
}

// upsertProvider crea o actualiza el registro persistido sin tocar el estado
// vivo (eso lo decide el caller con enabled).
func (o *Orchestrator) upsertProvider(ctx context.Context, cp core.ConfigurableProvider) (*core.ConfigurableProvider, error) {
	if cp.Provider == "" {
		return nil, fmt.Errorf("manifest provider without id in realm %s", cp.Realm)
	}
	existing, err := o.manager.Get(ctx, cp.Realm, cp.Provider)
	switch {
	case err == nil && existing != nil:
		return o.manager.Update(ctx, cp.Realm, cp.Provider, cp)
	case errors.Is(err, core.ErrNoSuchProvider):
		return o.manager.Add(ctx, cp.Realm, cp)
	default:
		return nil, err
	}
}
