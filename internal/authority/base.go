package authority

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/metrics"
	"github.com/dropDatabas3/idbroker/internal/observability/logger"
	"github.com/dropDatabas3/idbroker/internal/schema"
)

// Builder construye la instancia viva de una familia desde un snapshot de
// configuración. Puede bloquear en I/O; debe respetar ctx.
type Builder func(ctx context.Context, cp *core.ConfigurableProvider) (LiveProvider, error)

// Base implementa la mecánica común de una Authority: validación de schema,
// reserva/commit en el instanceMap y semántica all-or-nothing del register.
// Cada familia la embebe y aporta su Builder + schema.
type Base struct {
	id         string
	family     string
	schemaJSON string
	build      Builder
	validator  *schema.Validator
	instances  *instanceMap
}

// NewBase arma la base de una authority. validator puede compartirse entre
// authorities (cachea schemas compilados por texto).
func NewBase(id, family, schemaJSON string, validator *schema.Validator, build Builder) *Base {
	if validator == nil {
		validator = schema.NewValidator()
	}
	return &Base{
		id:         id,
		family:     family,
		schemaJSON: schemaJSON,
		build:      build,
		validator:  validator,
		instances:  newInstanceMap(),
	}
}

func (b *Base) ID() string           { return b.id }
func (b *Base) Type() string         { return b.family }
func (b *Base) ConfigSchema() string { return b.schemaJSON }

// Register valida, reserva la clave, construye y publica. Si la construcción
// falla no queda nada visible y el error se propaga al caller.
func (b *Base) Register(ctx context.Context, cp *core.ConfigurableProvider) (LiveProvider, error) {
	if cp.Authority != b.id {
		return nil, fmt.Errorf("%w: provider declares authority %q, registered against %q",
			core.ErrInvalidConfiguration, cp.Authority, b.id)
	}
	if cp.Provider == "" || cp.Realm == "" {
		return nil, fmt.Errorf("%w: missing provider id or realm", core.ErrInvalidConfiguration)
	}
	if err := b.validator.Validate(b.schemaJSON, cp.Configuration); err != nil {
		return nil, err
	}

	key := cp.Key()
	if !b.instances.reserve(key) {
		return nil, fmt.Errorf("%w: %s (%s)", core.ErrAlreadyRegistered, key, b.id)
	}

	inst, err := b.build(ctx, cp.Clone())
	if err != nil {
		b.instances.release(key)
		metrics.RegistrationsFailed.WithLabelValues(b.id).Inc()
		return nil, fmt.Errorf("%w: %s (%s): %v", core.ErrRegistrationFailure, key, b.id, err)
	}

	b.instances.commit(key, inst)
	metrics.RegistrationsTotal.WithLabelValues(b.id).Inc()
	metrics.RegistrationsActive.WithLabelValues(b.id).Inc()
	logger.From(ctx).Debug("provider registered",
		logger.Authority(b.id), logger.Realm(cp.Realm), logger.Provider(cp.Provider))
	return inst, nil
}

// Unregister remueve la instancia; nil si no estaba. No-op sin error.
func (b *Base) Unregister(realm, providerID string) LiveProvider {
	inst := b.instances.remove(core.ProviderKey{Realm: realm, Provider: providerID})
	if inst != nil {
		metrics.RegistrationsActive.WithLabelValues(b.id).Dec()
	}
	return inst
}

func (b *Base) IsRegistered(realm, providerID string) bool {
	return b.instances.get(core.ProviderKey{Realm: realm, Provider: providerID}) != nil
}

// Get busca por providerId en todo el mapa de la authority. El id es único
// por realm, no por authority: si el mismo id está registrado en más de un
// realm retorna la instancia del realm menor.
func (b *Base) Get(providerID string) (LiveProvider, error) {
	if inst := b.instances.getByID(providerID); inst != nil {
		return inst, nil
	}
	return nil, fmt.Errorf("%w: %s (%s)", core.ErrNoSuchProvider, providerID, b.id)
}

// IsAlreadyRegistered reporta si err es el rechazo por doble register.
func IsAlreadyRegistered(err error) bool { return errors.Is(err, core.ErrAlreadyRegistered) }
