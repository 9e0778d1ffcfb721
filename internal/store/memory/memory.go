// Package memory implementa store.Store en memoria. Pensado para tests y
// para correr el broker sin backend (dev). Thread-safe.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/store"
)

type Store struct {
	mu        sync.RWMutex
	realms    map[string]core.Realm
	providers map[core.ProviderKey]core.ConfigurableProvider
	services  map[string]core.Service         // key realm/serviceId
	clients   map[string]core.ClientApp       // key realm/clientId
	accounts  map[string]core.InternalAccount // key realm/provider/username
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		realms:    make(map[string]core.Realm),
		providers: make(map[core.ProviderKey]core.ConfigurableProvider),
		services:  make(map[string]core.Service),
		clients:   make(map[string]core.ClientApp),
		accounts:  make(map[string]core.InternalAccount),
	}
}

func (s *Store) Realms() store.RealmRepository       { return (*realmRepo)(s) }
func (s *Store) Providers() store.ProviderRepository { return (*providerRepo)(s) }
func (s *Store) Services() store.ServiceRepository   { return (*serviceRepo)(s) }
func (s *Store) Clients() store.ClientRepository     { return (*clientRepo)(s) }
func (s *Store) Accounts() store.AccountRepository   { return (*accountRepo)(s) }
func (s *Store) Close() error                        { return nil }

// ===== realms =====

type realmRepo Store

func (r *realmRepo) ListRealms(ctx context.Context) ([]core.Realm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Realm, 0, len(r.realms))
	for _, v := range r.realms {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (r *realmRepo) FindRealm(ctx context.Context, slug string) (*core.Realm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.realms[slug]; ok {
		return &v, nil
	}
	return nil, nil
}

func (r *realmRepo) SaveRealm(ctx context.Context, rm *core.Realm) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rm
	cp.UpdatedAt = time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	r.realms[rm.Slug] = cp
	return nil
}

func (r *realmRepo) DeleteRealm(ctx context.Context, slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.realms, slug)
	return nil
}

// ===== providers =====

type providerRepo Store

func (r *providerRepo) ListProviders(ctx context.Context, realm, typ string) ([]core.ConfigurableProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.ConfigurableProvider
	for k, v := range r.providers {
		if k.Realm != realm {
			continue
		}
		if typ != "" && v.Type != typ {
			continue
		}
		out = append(out, *v.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (r *providerRepo) FindProvider(ctx context.Context, realm, providerID string) (*core.ConfigurableProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.providers[core.ProviderKey{Realm: realm, Provider: providerID}]; ok {
		return v.Clone(), nil
	}
	return nil, nil
}

func (r *providerRepo) SaveProvider(ctx context.Context, p *core.ConfigurableProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p.Clone()
	cp.Registered = false // derivado, no se persiste
	cp.UpdatedAt = time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	r.providers[p.Key()] = *cp
	return nil
}

func (r *providerRepo) DeleteProvider(ctx context.Context, realm, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, core.ProviderKey{Realm: realm, Provider: providerID})
	return nil
}

// ===== services / clients =====

type serviceRepo Store

func (r *serviceRepo) FindService(ctx context.Context, realm, serviceID string) (*core.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.services[realm+"/"+serviceID]; ok {
		return &v, nil
	}
	return nil, nil
}

func (r *serviceRepo) SaveService(ctx context.Context, s *core.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[s.Realm+"/"+s.ServiceID] = *s
	return nil
}

type clientRepo Store

func (r *clientRepo) FindClient(ctx context.Context, realm, clientID string) (*core.ClientApp, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.clients[realm+"/"+clientID]; ok {
		return &v, nil
	}
	return nil, nil
}

func (r *clientRepo) SaveClient(ctx context.Context, c *core.ClientApp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Realm+"/"+c.ClientID] = *c
	return nil
}

// ===== accounts =====

type accountRepo Store

func accountKey(realm, provider, username string) string {
	return realm + "/" + provider + "/" + strings.ToLower(username)
}

func (r *accountRepo) FindAccount(ctx context.Context, realm, provider, username string) (*core.InternalAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.accounts[accountKey(realm, provider, username)]; ok {
		return &v, nil
	}
	return nil, nil
}

func (r *accountRepo) FindAccountBySubject(ctx context.Context, subject string) (*core.InternalAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.accounts {
		if v.Subject == subject {
			return &v, nil
		}
	}
	return nil, nil
}

func (r *accountRepo) ListAccounts(ctx context.Context, realm, provider string) ([]core.InternalAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.InternalAccount
	for _, v := range r.accounts {
		if v.Realm == realm && v.Provider == provider {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r *accountRepo) SaveAccount(ctx context.Context, a *core.InternalAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	cp.UpdatedAt = time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	r.accounts[accountKey(a.Realm, a.Provider, a.Username)] = cp
	return nil
}

func (r *accountRepo) DeleteAccount(ctx context.Context, realm, provider, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, accountKey(realm, provider, username))
	return nil
}
