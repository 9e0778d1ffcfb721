// Package bootstrap lleva un proceso recién arrancado a estado consistente:
// fase system (providers del realm reservado), fase tenant (fan-out paralelo
// por realm) y fase manifest (upsert declarativo, opcional). Las fases corren
// en orden estricto con barrera entre cada una; dentro de una fase cada item
// que falla se loguea y se saltea, nunca aborta la corrida.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/idbroker/internal/authority/internalpw"
	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/manager"
	"github.com/dropDatabas3/idbroker/internal/metrics"
	"github.com/dropDatabas3/idbroker/internal/observability/logger"
	"github.com/dropDatabas3/idbroker/internal/realm"
	"github.com/dropDatabas3/idbroker/internal/store"
)

// Options controla la corrida. Los ceros toman defaults razonables.
type Options struct {
	// Parallelism acota el fan-out por realm de la fase tenant.
	Parallelism int

	// RegisterTimeout acota cada registración individual (discovery OIDC,
	// metadata SAML): un IdP caído no puede colgar el arranque.
	RegisterTimeout time.Duration

	// ApplyManifest habilita la fase 3; ManifestPath es el yaml declarativo.
	ApplyManifest bool
	ManifestPath  string
}

func (o *Options) defaults() {
	if o.Parallelism <= 0 {
		o.Parallelism = 8
	}
	if o.RegisterTimeout <= 0 {
		o.RegisterTimeout = 30 * time.Second
	}
}

// Result resume la corrida: cuántos items se registraron y cuántos fallaron
// (y quedaron salteados) por fase.
type Result struct {
	SystemRegistered int
	SystemFailed     int
	TenantRegistered int
	TenantFailed     int
	ManifestApplied  int
	ManifestFailed   int
}

// Orchestrator corre el bootstrap. Una vez por proceso, disparado cuando la
// aplicación está lista.
type Orchestrator struct {
	realms   *realm.Service
	manager  *manager.Manager
	store    store.Store
	accounts *internalpw.Accounts
	opts     Options
}

func New(realms *realm.Service, mgr *manager.Manager, st store.Store, accounts *internalpw.Accounts, opts Options) *Orchestrator {
	opts.defaults()
	return &Orchestrator{realms: realms, manager: mgr, store: st, accounts: accounts, opts: opts}
}

// Run ejecuta las tres fases. Retorna error solo ante una falla
// no-recuperable de fase 0 (no se puede cargar la lista de realms o el
// manifest no se puede leer); las fallas por item quedan en Result.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	log := logger.Named("bootstrap")
	res := &Result{}

	// ===== fase 1: system realm =====
	start := time.Now()
	o.registerRealm(ctx, core.RealmSystem, &res.SystemRegistered, &res.SystemFailed, "system")
	metrics.BootstrapPhaseDuration.WithLabelValues("system").Observe(time.Since(start).Seconds())
	log.Info("system phase done",
		logger.Phase("system"),
		logger.Count(res.SystemRegistered))

	// ===== fase 2: tenant realms, paralelo =====
	start = time.Now()
	realms, err := o.realms.List(ctx)
	if err != nil {
		// irrecuperable: sin lista de realms no hay nada que arrancar
		return res, fmt.Errorf("load realm list: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Parallelism)
	type tally struct{ ok, failed int }
	results := make([]tally, len(realms))
	for i, r := range realms {
		if r.Slug == core.RealmSystem {
			continue
		}
		i, slug := i, r.Slug
		g.Go(func() error {
			o.registerRealm(gctx, slug, &results[i].ok, &results[i].failed, "tenant")
			return nil // los realms son dominios de falla independientes
		})
	}
	_ = g.Wait()
	for _, t := range results {
		res.TenantRegistered += t.ok
		res.TenantFailed += t.failed
	}
	metrics.BootstrapPhaseDuration.WithLabelValues("tenant").Observe(time.Since(start).Seconds())
	log.Info("tenant phase done",
		logger.Phase("tenant"),
		logger.Count(res.TenantRegistered))

	// ===== fase 3: manifest declarativo =====
	if o.opts.ApplyManifest && o.opts.ManifestPath != "" {
		start = time.Now()
		m, err := LoadManifest(o.opts.ManifestPath)
		if err != nil {
			// manifest ausente: no hay nada que aplicar, la corrida sigue.
			// Ilegible o mal formado sí es fatal.
			if errors.Is(err, os.ErrNotExist) {
				log.Debug("no manifest file, skipping phase",
					logger.Phase("manifest"), logger.Op(o.opts.ManifestPath))
				return res, nil
			}
			return res, fmt.Errorf("load manifest: %w", err)
		}
		applied, failed := o.applyManifest(ctx, m)
		res.ManifestApplied = applied
		res.ManifestFailed = failed
		metrics.BootstrapPhaseDuration.WithLabelValues("manifest").Observe(time.Since(start).Seconds())
		log.Info("manifest phase done",
			logger.Phase("manifest"),
			logger.Count(applied))
	}

	return res, nil
}

// registerRealm registra todos los providers habilitados de un realm, familia
// identity primero y attribute después (el orden intra-realm no importa, se
// mantiene por determinismo en los logs). Catch-log-continue por item.
func (o *Orchestrator) registerRealm(ctx context.Context, slug string, ok, failed *int, phase string) {
	log := logger.Named("bootstrap")
	for _, typ := range []string{core.TypeIdentity, core.TypeAttribute} {
		providers, err := o.manager.List(ctx, slug, typ)
		if err != nil {
			log.Warn("cannot list providers",
				logger.Realm(slug), logger.ProviderType(typ), logger.Err(err))
			metrics.BootstrapItemsFailed.WithLabelValues(phase).Inc()
			*failed++
			continue
		}
		for _, cp := range providers {
			if !cp.Enabled || cp.Registered {
				continue
			}
			if err := o.registerOne(ctx, slug, cp.Provider); err != nil {
				log.Warn("provider registration failed",
					logger.Realm(slug),
					logger.Provider(cp.Provider),
					logger.Authority(cp.Authority),
					logger.Err(err))
				metrics.BootstrapItemsFailed.WithLabelValues(phase).Inc()
				*failed++
				continue
			}
			*ok++
		}
	}
}

func (o *Orchestrator) registerOne(ctx context.Context, slug, providerID string) error {
	rctx, cancel := context.WithTimeout(ctx, o.opts.RegisterTimeout)
	defer cancel()
	_, err := o.manager.Register(rctx, slug, providerID)
	if err != nil && errors.Is(err, core.ErrAlreadyRegistered) {
		// carrera benigna con otro path de arranque: ya está vivo
		return nil
	}
	return err
}
