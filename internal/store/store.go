// Package store define los contratos de persistencia del broker. El core
// solo conoce estas interfaces; los adapters (fs, pg, memory) viven en
// subpackages. Find* retorna (nil, nil) cuando el registro no existe: el
// "not found" como error tipado lo decide la capa de arriba.
package store

import (
	"context"

	"github.com/dropDatabas3/idbroker/internal/core"
)

// RealmRepository es la fuente de realms, read-mostly.
type RealmRepository interface {
	ListRealms(ctx context.Context) ([]core.Realm, error)
	FindRealm(ctx context.Context, slug string) (*core.Realm, error)
	SaveRealm(ctx context.Context, r *core.Realm) error
	DeleteRealm(ctx context.Context, slug string) error
}

// ProviderRepository persiste ConfigurableProviders, keyed (realm, providerId).
type ProviderRepository interface {
	// ListProviders filtra por realm y, si typ != "", por familia.
	ListProviders(ctx context.Context, realm, typ string) ([]core.ConfigurableProvider, error)
	FindProvider(ctx context.Context, realm, providerID string) (*core.ConfigurableProvider, error)
	SaveProvider(ctx context.Context, p *core.ConfigurableProvider) error
	DeleteProvider(ctx context.Context, realm, providerID string) error
}

// ServiceRepository persiste services realm-scoped (consumidos por el manifest).
type ServiceRepository interface {
	FindService(ctx context.Context, realm, serviceID string) (*core.Service, error)
	SaveService(ctx context.Context, s *core.Service) error
}

// ClientRepository persiste clients OAuth2 realm-scoped.
type ClientRepository interface {
	FindClient(ctx context.Context, realm, clientID string) (*core.ClientApp, error)
	SaveClient(ctx context.Context, c *core.ClientApp) error
}

// AccountRepository persiste cuentas del provider interno.
type AccountRepository interface {
	FindAccount(ctx context.Context, realm, provider, username string) (*core.InternalAccount, error)
	FindAccountBySubject(ctx context.Context, subject string) (*core.InternalAccount, error)
	ListAccounts(ctx context.Context, realm, provider string) ([]core.InternalAccount, error)
	SaveAccount(ctx context.Context, a *core.InternalAccount) error
	DeleteAccount(ctx context.Context, realm, provider, username string) error
}

// Store agrupa los repositorios. Los adapters implementan todo el set.
type Store interface {
	Realms() RealmRepository
	Providers() ProviderRepository
	Services() ServiceRepository
	Clients() ClientRepository
	Accounts() AccountRepository

	// Close libera recursos del backend (pools, handles).
	Close() error
}
