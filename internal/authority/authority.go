// Package authority define el contrato de las familias de providers
// (internal, oidc, saml, webauthn, ...) y el registry proceso-wide que las
// cataloga. Cada Authority es un factory + registro de instancias vivas:
// construye un provider desde su ConfigurableProvider y lo mantiene keyed
// por (realm, providerId). El core nunca guarda una segunda referencia a la
// instancia viva.
package authority

import (
	"context"

	"github.com/dropDatabas3/idbroker/internal/core"
)

// LiveProvider es la instancia runtime que una Authority construye desde un
// ConfigurableProvider. Se crea estrictamente desde un snapshot de config:
// editar la config persistida no muta una instancia corriendo (hay que
// unregister + register para aplicar cambios).
type LiveProvider interface {
	// Key retorna (realm, providerId).
	Key() core.ProviderKey

	// AuthorityID retorna el id de la authority dueña.
	AuthorityID() string

	// Type retorna la familia: core.TypeIdentity o core.TypeAttribute.
	Type() string
}

// IdentityProvider es la capability de login/identidad.
type IdentityProvider interface {
	LiveProvider

	// Authenticate resuelve credenciales a una identidad. Los adapters de
	// protocolo (fuera del core) la usan en request-time.
	Authenticate(ctx context.Context, credentials map[string]string) (*Identity, error)
}

// AttributeProvider es la capability de resolución de atributos.
type AttributeProvider interface {
	LiveProvider

	// Attributes resuelve los atributos de un subject.
	Attributes(ctx context.Context, subject string) (map[string]any, error)
}

// CredentialsService es una capability opcional (solo la familia internal la
// implementa hoy): manejo de credenciales propias del provider.
type CredentialsService interface {
	SetPassword(ctx context.Context, subject, plain string) error
	VerifyPassword(ctx context.Context, subject, plain string) (bool, error)
}

// Identity es el resultado de una autenticación.
type Identity struct {
	Subject    string
	Realm      string
	Provider   string
	Username   string
	Email      string
	Attributes map[string]any
}

// Authority es un factory + registro para una familia de providers.
//
// Contrato de Register: o la instancia queda completamente construida y
// almacenada, o no queda nada y el error se propaga. Registrar una clave ya
// registrada falla con core.ErrAlreadyRegistered (política uniforme para
// todas las familias); los callers que quieren idempotencia chequean
// IsRegistered primero.
type Authority interface {
	// ID retorna el authorityId ("internal", "oidc", ...).
	ID() string

	// Type retorna la familia que sirve esta authority.
	Type() string

	// Register construye una instancia viva desde cp, validando la config
	// contra el schema de la authority. Puede bloquear en I/O (discovery,
	// metadata, material cripto); el caller acota con ctx.
	Register(ctx context.Context, cp *core.ConfigurableProvider) (LiveProvider, error)

	// Unregister remueve y retorna la instancia si existe; nil si no estaba
	// (no es error: unregister de algo no registrado es no-op).
	Unregister(realm, providerID string) LiveProvider

	// IsRegistered reporta si existe instancia viva para (realm, providerId).
	IsRegistered(realm, providerID string) bool

	// Get busca la instancia viva por providerId. Falla con
	// core.ErrNoSuchProvider si no existe.
	Get(providerID string) (LiveProvider, error)

	// ConfigSchema retorna el JSON Schema (texto) de la configuración que
	// acepta esta authority. Estático por authority.
	ConfigSchema() string
}
