// Package manager implementa el ProviderManager: el único punto de entrada
// configuration-time para mutar providers. Media entre los registros
// persistidos (store) y el estado runtime (authorities). Toda mutación
// runtime pasa por acá, así el estado vivo siempre es alcanzable por un solo
// choke point.
package manager

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dropDatabas3/idbroker/internal/authority"
	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/observability/logger"
	"github.com/dropDatabas3/idbroker/internal/realm"
	"github.com/dropDatabas3/idbroker/internal/schema"
	"github.com/dropDatabas3/idbroker/internal/store"
)

type Manager struct {
	realms    *realm.Service
	repo      store.ProviderRepository
	registry  *authority.Registry
	validator *schema.Validator
}

func New(realms *realm.Service, repo store.ProviderRepository, registry *authority.Registry) *Manager {
	return &Manager{
		realms:    realms,
		repo:      repo,
		registry:  registry,
		validator: schema.NewValidator(),
	}
}

// Add valida y persiste un provider nuevo con enabled=false. Nunca
// auto-registra: registrar es una decisión explícita del caller.
func (m *Manager) Add(ctx context.Context, realmSlug string, draft core.ConfigurableProvider) (*core.ConfigurableProvider, error) {
	ok, err := m.realms.Exists(ctx, realmSlug)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrNoSuchRealm, realmSlug)
	}

	draft.Realm = realmSlug
	draft.Type = core.NormalizeType(draft.Type)

	// (authority, type) tiene que existir en el registry
	auth, err := m.registry.Authority(draft.Type, draft.Authority)
	if err != nil {
		return nil, err
	}

	if draft.Provider == "" {
		draft.Provider = generateProviderID(draft.Authority)
	} else {
		existing, err := m.repo.FindProvider(ctx, realmSlug, draft.Provider)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: %s/%s", core.ErrDuplicateProvider, realmSlug, draft.Provider)
		}
	}

	if err := m.validator.Validate(auth.ConfigSchema(), draft.Configuration); err != nil {
		return nil, err
	}
	if draft.Persistence == "" {
		draft.Persistence = core.PersistenceRepository
	}

	draft.Enabled = false
	if err := m.repo.SaveProvider(ctx, &draft); err != nil {
		return nil, err
	}
	logger.From(ctx).Info("provider added",
		logger.Realm(realmSlug), logger.Provider(draft.Provider), logger.Authority(draft.Authority))

	out := draft.Clone()
	out.Registered = false
	return out, nil
}

// Update reemplaza los campos mutables y re-valida. Los campos de identidad
// (type, authority, provider, realm) son inmutables post-creación.
//
// Asimetría documentada: si el provider está registrado, el update NO se
// propaga a la instancia viva; el caller tiene que unregister + register
// para aplicar los cambios. El campo Registered del retorno refleja el
// estado vivo, así el caller ve la divergencia.
func (m *Manager) Update(ctx context.Context, realmSlug, providerID string, draft core.ConfigurableProvider) (*core.ConfigurableProvider, error) {
	existing, err := m.load(ctx, realmSlug, providerID)
	if err != nil {
		return nil, err
	}

	if err := rejectIdentityChange(existing, &draft); err != nil {
		return nil, err
	}

	auth, err := m.registry.Authority(existing.Type, existing.Authority)
	if err != nil {
		return nil, err
	}
	if err := m.validator.Validate(auth.ConfigSchema(), draft.Configuration); err != nil {
		return nil, err
	}

	existing.Name = draft.Name
	existing.Description = draft.Description
	existing.Configuration = draft.Configuration
	existing.Linkable = draft.Linkable
	existing.AttributeSets = draft.AttributeSets
	existing.HookFunctions = draft.HookFunctions
	if draft.Persistence != "" {
		existing.Persistence = draft.Persistence
	}

	if err := m.repo.SaveProvider(ctx, existing); err != nil {
		return nil, err
	}

	out := existing.Clone()
	out.Registered = auth.IsRegistered(realmSlug, providerID)
	return out, nil
}

// Register materializa la instancia viva. En éxito persiste enabled=true;
// en fallo el registro queda intacto y el error se propaga sin tragar (el
// caller decide: el admin API lo devuelve, el bootstrap lo loggea y sigue).
func (m *Manager) Register(ctx context.Context, realmSlug, providerID string) (*core.ConfigurableProvider, error) {
	cp, err := m.load(ctx, realmSlug, providerID)
	if err != nil {
		return nil, err
	}
	auth, err := m.registry.Authority(cp.Type, cp.Authority)
	if err != nil {
		return nil, err
	}

	if _, err := auth.Register(ctx, cp); err != nil {
		return nil, err
	}

	cp.Enabled = true
	if err := m.repo.SaveProvider(ctx, cp); err != nil {
		// la instancia quedó viva pero no pudimos persistir la intención:
		// deshacemos para no divergir silenciosamente
		auth.Unregister(realmSlug, providerID)
		return nil, err
	}

	out := cp.Clone()
	out.Registered = true
	return out, nil
}

// Unregister destruye la instancia viva (si hay) y persiste enabled=false.
// Idempotente: sobre un provider no registrado es no-op contra la authority.
func (m *Manager) Unregister(ctx context.Context, realmSlug, providerID string) (*core.ConfigurableProvider, error) {
	cp, err := m.load(ctx, realmSlug, providerID)
	if err != nil {
		return nil, err
	}
	auth, err := m.registry.Authority(cp.Type, cp.Authority)
	if err != nil {
		return nil, err
	}

	auth.Unregister(realmSlug, providerID)

	cp.Enabled = false
	if err := m.repo.SaveProvider(ctx, cp); err != nil {
		return nil, err
	}

	out := cp.Clone()
	out.Registered = false
	return out, nil
}

// Delete borra el registro persistido; si está registrado lo des-registra
// primero. Borrar un provider inexistente falla con ErrNoSuchProvider.
func (m *Manager) Delete(ctx context.Context, realmSlug, providerID string) error {
	cp, err := m.load(ctx, realmSlug, providerID)
	if err != nil {
		return err
	}
	auth, err := m.registry.Authority(cp.Type, cp.Authority)
	if err != nil {
		return err
	}

	auth.Unregister(realmSlug, providerID)

	if err := m.repo.DeleteProvider(ctx, realmSlug, providerID); err != nil {
		return err
	}
	logger.From(ctx).Info("provider deleted",
		logger.Realm(realmSlug), logger.Provider(providerID))
	return nil
}

// IsRegistered es query pura: delega en la authority.
func (m *Manager) IsRegistered(ctx context.Context, realmSlug, providerID string) (bool, error) {
	cp, err := m.load(ctx, realmSlug, providerID)
	if err != nil {
		return false, err
	}
	auth, err := m.registry.Authority(cp.Type, cp.Authority)
	if err != nil {
		return false, err
	}
	return auth.IsRegistered(realmSlug, providerID), nil
}

// Get retorna el registro persistido con Registered calculado en vivo.
func (m *Manager) Get(ctx context.Context, realmSlug, providerID string) (*core.ConfigurableProvider, error) {
	cp, err := m.load(ctx, realmSlug, providerID)
	if err != nil {
		return nil, err
	}
	m.fillRegistered(cp)
	return cp, nil
}

// List lee los registros persistidos del realm (filtrados por familia si
// typ != ""). El campo Registered se calcula consultando la authority en
// cada lectura, nunca cacheado: las vistas admin reflejan la verdad viva
// aunque el registro haya sido mutado por fuera.
func (m *Manager) List(ctx context.Context, realmSlug, typ string) ([]core.ConfigurableProvider, error) {
	list, err := m.repo.ListProviders(ctx, realmSlug, core.NormalizeType(typ))
	if err != nil {
		return nil, err
	}
	for i := range list {
		m.fillRegistered(&list[i])
	}
	return list, nil
}

// ===== helpers =====

func (m *Manager) load(ctx context.Context, realmSlug, providerID string) (*core.ConfigurableProvider, error) {
	cp, err := m.repo.FindProvider(ctx, realmSlug, providerID)
	if err != nil {
		return nil, err
	}
	if cp == nil || cp.Realm != realmSlug {
		return nil, fmt.Errorf("%w: %s/%s", core.ErrNoSuchProvider, realmSlug, providerID)
	}
	return cp, nil
}

func (m *Manager) fillRegistered(cp *core.ConfigurableProvider) {
	cp.Registered = false
	if auth, err := m.registry.Authority(cp.Type, cp.Authority); err == nil {
		cp.Registered = auth.IsRegistered(cp.Realm, cp.Provider)
	}
}

func rejectIdentityChange(existing *core.ConfigurableProvider, draft *core.ConfigurableProvider) error {
	if draft.Authority != "" && draft.Authority != existing.Authority {
		return fmt.Errorf("%w: authority", core.ErrImmutableField)
	}
	if draft.Provider != "" && draft.Provider != existing.Provider {
		return fmt.Errorf("%w: provider", core.ErrImmutableField)
	}
	if draft.Realm != "" && draft.Realm != existing.Realm {
		return fmt.Errorf("%w: realm", core.ErrImmutableField)
	}
	if t := core.NormalizeType(draft.Type); t != "" && t != existing.Type {
		return fmt.Errorf("%w: type", core.ErrImmutableField)
	}
	return nil
}

// generateProviderID arma un id legible y único dentro de la authority:
// "<authority>-<uuid sin guiones, 12 chars>".
func generateProviderID(authorityID string) string {
	u := uuid.NewString()
	compact := make([]byte, 0, 12)
	for i := 0; i < len(u) && len(compact) < 12; i++ {
		if u[i] != '-' {
			compact = append(compact, u[i])
		}
	}
	return authorityID + "-" + string(compact)
}
