package core

import "errors"

// Errores del dominio. Los callers hacen match con errors.Is; las capas
// superiores (HTTP admin) los traducen a status codes.
var (
	// ErrNoSuchRealm: el slug referenciado no existe.
	ErrNoSuchRealm = errors.New("no such realm")

	// ErrNoSuchProvider: no hay registro persistido para (realm, providerId).
	ErrNoSuchProvider = errors.New("no such provider")

	// ErrNoSuchAuthority: un ConfigurableProvider nombra una authority que no
	// está instalada en el registry. Siempre es un error de deployment/config.
	ErrNoSuchAuthority = errors.New("no such authority")

	// ErrInvalidConfiguration: el payload de configuration no valida contra el
	// schema de la authority, o faltan campos de identidad requeridos.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrAlreadyRegistered: ya existe una instancia viva para (realm, providerId).
	// Política uniforme para todas las familias: el segundo register falla.
	ErrAlreadyRegistered = errors.New("provider already registered")

	// ErrDuplicateProvider: violación de unicidad (authority, provider, realm)
	// en el plano persistido.
	ErrDuplicateProvider = errors.New("duplicate provider")

	// ErrRegistrationFailure: la authority no pudo construir la instancia viva
	// (credenciales malas, metadata inalcanzable, material cripto inválido).
	ErrRegistrationFailure = errors.New("provider registration failed")

	// ErrImmutableField: intento de cambiar authority/provider/realm/type en
	// un update.
	ErrImmutableField = errors.New("immutable provider field")

	// ErrInvalidSlug: slug de realm fuera del patrón permitido.
	ErrInvalidSlug = errors.New("invalid realm slug")

	// ErrRealmExists: alta de realm con slug ya tomado.
	ErrRealmExists = errors.New("realm already exists")
)
