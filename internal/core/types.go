package core

import (
	"regexp"
	"strings"
	"time"
)

// Tipos de provider soportados.
const (
	TypeIdentity  = "identity"
	TypeAttribute = "attribute"
)

// RealmSystem es el realm reservado para providers de alcance proceso
// (login interno del sistema, admin). No se puede crear ni borrar vía API.
const RealmSystem = "system"

// Modos de persistencia de cuentas/atributos de un provider.
const (
	PersistenceNone       = "none"
	PersistenceRepository = "repository"
	PersistenceSession    = "session"
)

var reSlug = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,126}[a-z0-9]$`)

// ValidSlug reporta si s cumple el patrón de slug (alfanumérico + guiones,
// minúsculas). Se valida en el alta y en cada referencia externa (manifest).
func ValidSlug(s string) bool { return reSlug.MatchString(s) }

// Realm es un tenant: particiona configuración, usuarios y providers.
type Realm struct {
	Slug      string    `json:"slug" yaml:"slug"` // inmutable post-creación
	Name      string    `json:"name" yaml:"name"`
	Public    bool      `json:"public,omitempty" yaml:"public,omitempty"`
	Editable  bool      `json:"editable,omitempty" yaml:"editable,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// ConfigurableProvider es la descripción persistida de un provider.
//
// Identidad (inmutable post-creación): Type, Authority, Provider, Realm.
// La tupla (authority, provider, realm) es única.
//
// Enabled es intención declarada; Registered es el hecho observado en runtime.
// Pueden divergir de forma transitoria (p.ej. register fallido): Registered
// nunca se persiste, se calcula preguntando a la Authority.
type ConfigurableProvider struct {
	Type      string `json:"type" yaml:"type"`
	Authority string `json:"authority" yaml:"authority"`
	Provider  string `json:"provider" yaml:"provider"` // único dentro de (authority, realm)
	Realm     string `json:"realm" yaml:"realm"`

	Name          string         `json:"name,omitempty" yaml:"name,omitempty"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled       bool           `json:"enabled" yaml:"enabled"`
	Persistence   string         `json:"persistence,omitempty" yaml:"persistence,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty" yaml:"configuration,omitempty"`

	// Extras por familia
	Linkable      bool              `json:"linkable,omitempty" yaml:"linkable,omitempty"`
	AttributeSets []string          `json:"attributeSets,omitempty" yaml:"attributeSets,omitempty"`
	HookFunctions map[string]string `json:"hookFunctions,omitempty" yaml:"hookFunctions,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`

	// Registered es derivado: true si la Authority tiene una instancia viva.
	// Nunca se persiste (yaml:"-").
	Registered bool `json:"registered" yaml:"-"`
}

// Key devuelve la clave runtime (realm, provider) usada por las Authorities.
func (p *ConfigurableProvider) Key() ProviderKey {
	return ProviderKey{Realm: p.Realm, Provider: p.Provider}
}

// Clone devuelve una copia profunda (el configuration map no se comparte).
func (p *ConfigurableProvider) Clone() *ConfigurableProvider {
	cp := *p
	if p.Configuration != nil {
		cp.Configuration = make(map[string]any, len(p.Configuration))
		for k, v := range p.Configuration {
			cp.Configuration[k] = v
		}
	}
	cp.AttributeSets = append([]string(nil), p.AttributeSets...)
	if p.HookFunctions != nil {
		cp.HookFunctions = make(map[string]string, len(p.HookFunctions))
		for k, v := range p.HookFunctions {
			cp.HookFunctions[k] = v
		}
	}
	return &cp
}

// ProviderKey identifica una instancia viva dentro de una Authority.
type ProviderKey struct {
	Realm    string
	Provider string
}

func (k ProviderKey) String() string { return k.Realm + "/" + k.Provider }

// Service es un registro mínimo realm-scoped (consumido por el manifest).
type Service struct {
	ServiceID   string `json:"serviceId" yaml:"serviceId"`
	Realm       string `json:"realm" yaml:"realm"`
	Namespace   string `json:"namespace" yaml:"namespace"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ClientApp es un cliente OAuth2/OIDC realm-scoped (consumido por el manifest).
type ClientApp struct {
	ClientID     string   `json:"clientId" yaml:"clientId"`
	Realm        string   `json:"realm" yaml:"realm"`
	Name         string   `json:"name,omitempty" yaml:"name,omitempty"`
	Type         string   `json:"type,omitempty" yaml:"type,omitempty"` // public | confidential
	RedirectURIs []string `json:"redirectUris,omitempty" yaml:"redirectUris,omitempty"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	Providers    []string `json:"providers,omitempty" yaml:"providers,omitempty"`
}

// NormalizeType baja a minúsculas y recorta el type declarado.
func NormalizeType(t string) string { return strings.ToLower(strings.TrimSpace(t)) }
