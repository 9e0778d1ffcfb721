// Package fs implementa store.Store con YAML en disco. Layout:
//
//	<root>/realms/<slug>/realm.yaml
//	<root>/realms/<slug>/providers.yaml
//	<root>/realms/<slug>/services.yaml
//	<root>/realms/<slug>/clients.yaml
//	<root>/realms/<slug>/accounts.yaml
//
// Los valores de configuration con clave "secreta" (clientSecret, password,
// privateKey, ...) se sellan con secretbox antes de persistir y se abren al
// cargar: en disco nunca queda un secreto en claro.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/security/secretbox"
	"github.com/dropDatabas3/idbroker/internal/store"
	"github.com/dropDatabas3/idbroker/internal/util/atomicwrite"
)

// secretConfigKeys: claves de configuration que se sellan at-rest.
var secretConfigKeys = map[string]bool{
	"clientSecret": true,
	"privateKey":   true,
	"password":     true,
	"apiKey":       true,
}

const sealedPrefix = "enc:"

type Store struct {
	root string

	// un solo lock para todo el árbol: el fs store es para dev/instalaciones
	// chicas, la contención no importa acá
	mu sync.RWMutex
}

var _ store.Store = (*Store)(nil)

func New(root string) *Store { return &Store{root: filepath.Clean(root)} }

func (s *Store) Root() string { return s.root }

func (s *Store) realmsDir() string            { return filepath.Join(s.root, "realms") }
func (s *Store) realmDir(slug string) string  { return filepath.Join(s.realmsDir(), slug) }
func (s *Store) realmFile(slug string) string { return filepath.Join(s.realmDir(slug), "realm.yaml") }
func (s *Store) providersFile(slug string) string {
	return filepath.Join(s.realmDir(slug), "providers.yaml")
}
func (s *Store) servicesFile(slug string) string {
	return filepath.Join(s.realmDir(slug), "services.yaml")
}
func (s *Store) clientsFile(slug string) string {
	return filepath.Join(s.realmDir(slug), "clients.yaml")
}
func (s *Store) accountsFile(slug string) string {
	return filepath.Join(s.realmDir(slug), "accounts.yaml")
}

func (s *Store) Realms() store.RealmRepository       { return (*realmRepo)(s) }
func (s *Store) Providers() store.ProviderRepository { return (*providerRepo)(s) }
func (s *Store) Services() store.ServiceRepository   { return (*serviceRepo)(s) }
func (s *Store) Clients() store.ClientRepository     { return (*clientRepo)(s) }
func (s *Store) Accounts() store.AccountRepository   { return (*accountRepo)(s) }
func (s *Store) Close() error                        { return nil }

// ===== helpers FS =====

func readYAML[T any](path string, out *T) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, out)
}

func writeYAML(path string, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return atomicwrite.WriteFile(path, b, 0o600)
}

// sealConfiguration cifra in-place los valores string de claves secretas.
func sealConfiguration(cfg map[string]any) error {
	for k, v := range cfg {
		sv, ok := v.(string)
		if !ok || !secretConfigKeys[k] || strings.HasPrefix(sv, sealedPrefix) {
			continue
		}
		enc, err := secretbox.Encrypt(sv)
		if err != nil {
			return fmt.Errorf("seal %s: %w", k, err)
		}
		cfg[k] = sealedPrefix + enc
	}
	return nil
}

// openConfiguration descifra in-place los valores sellados.
func openConfiguration(cfg map[string]any) error {
	for k, v := range cfg {
		sv, ok := v.(string)
		if !ok || !strings.HasPrefix(sv, sealedPrefix) {
			continue
		}
		plain, err := secretbox.Decrypt(strings.TrimPrefix(sv, sealedPrefix))
		if err != nil {
			return fmt.Errorf("open %s: %w", k, err)
		}
		cfg[k] = plain
	}
	return nil
}

// ===== realms =====

type realmRepo Store

func (r *realmRepo) ListRealms(ctx context.Context) ([]core.Realm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries, err := os.ReadDir((*Store)(r).realmsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []core.Realm
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var rm core.Realm
		if err := readYAML((*Store)(r).realmFile(e.Name()), &rm); err != nil {
			continue // directorio sin realm.yaml: se ignora
		}
		out = append(out, rm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (r *realmRepo) FindRealm(ctx context.Context, slug string) (*core.Realm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var rm core.Realm
	if err := readYAML((*Store)(r).realmFile(slug), &rm); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &rm, nil
}

func (r *realmRepo) SaveRealm(ctx context.Context, rm *core.Realm) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return writeYAML((*Store)(r).realmFile(rm.Slug), rm)
}

func (r *realmRepo) DeleteRealm(ctx context.Context, slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return os.RemoveAll((*Store)(r).realmDir(slug))
}

// ===== providers =====

type providerRepo Store

func (r *providerRepo) load(slug string) ([]core.ConfigurableProvider, error) {
	var list []core.ConfigurableProvider
	if err := readYAML((*Store)(r).providersFile(slug), &list); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	for i := range list {
		if err := openConfiguration(list[i].Configuration); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (r *providerRepo) save(slug string, list []core.ConfigurableProvider) error {
	for i := range list {
		if err := sealConfiguration(list[i].Configuration); err != nil {
			return err
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Provider < list[j].Provider })
	return writeYAML((*Store)(r).providersFile(slug), list)
}

func (r *providerRepo) ListProviders(ctx context.Context, realm, typ string) ([]core.ConfigurableProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list, err := r.load(realm)
	if err != nil {
		return nil, err
	}
	if typ == "" {
		return list, nil
	}
	out := list[:0]
	for _, p := range list {
		if p.Type == typ {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *providerRepo) FindProvider(ctx context.Context, realm, providerID string) (*core.ConfigurableProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list, err := r.load(realm)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Provider == providerID {
			return &list[i], nil
		}
	}
	return nil, nil
}

func (r *providerRepo) SaveProvider(ctx context.Context, p *core.ConfigurableProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list, err := r.load(p.Realm)
	if err != nil {
		return err
	}
	cp := p.Clone()
	cp.Registered = false
	replaced := false
	for i := range list {
		if list[i].Provider == cp.Provider {
			list[i] = *cp
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, *cp)
	}
	return r.save(p.Realm, list)
}

func (r *providerRepo) DeleteProvider(ctx context.Context, realm, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list, err := r.load(realm)
	if err != nil {
		return err
	}
	out := list[:0]
	for _, p := range list {
		if p.Provider != providerID {
			out = append(out, p)
		}
	}
	return r.save(realm, out)
}

// ===== services =====

type serviceRepo Store

func (r *serviceRepo) FindService(ctx context.Context, realm, serviceID string) (*core.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []core.Service
	if err := readYAML((*Store)(r).servicesFile(realm), &list); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for i := range list {
		if list[i].ServiceID == serviceID {
			return &list[i], nil
		}
	}
	return nil, nil
}

func (r *serviceRepo) SaveService(ctx context.Context, s *core.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []core.Service
	if err := readYAML((*Store)(r).servicesFile(s.Realm), &list); err != nil && !os.IsNotExist(err) {
		return err
	}
	replaced := false
	for i := range list {
		if list[i].ServiceID == s.ServiceID {
			list[i] = *s
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, *s)
	}
	return writeYAML((*Store)(r).servicesFile(s.Realm), list)
}

// ===== clients =====

type clientRepo Store

func (r *clientRepo) FindClient(ctx context.Context, realm, clientID string) (*core.ClientApp, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []core.ClientApp
	if err := readYAML((*Store)(r).clientsFile(realm), &list); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for i := range list {
		if list[i].ClientID == clientID {
			return &list[i], nil
		}
	}
	return nil, nil
}

func (r *clientRepo) SaveClient(ctx context.Context, c *core.ClientApp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []core.ClientApp
	if err := readYAML((*Store)(r).clientsFile(c.Realm), &list); err != nil && !os.IsNotExist(err) {
		return err
	}
	replaced := false
	for i := range list {
		if list[i].ClientID == c.ClientID {
			list[i] = *c
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, *c)
	}
	return writeYAML((*Store)(r).clientsFile(c.Realm), list)
}

// ===== accounts =====

type accountRepo Store

func (r *accountRepo) load(slug string) ([]core.InternalAccount, error) {
	var list []core.InternalAccount
	if err := readYAML((*Store)(r).accountsFile(slug), &list); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return list, nil
}

func (r *accountRepo) FindAccount(ctx context.Context, realm, provider, username string) (*core.InternalAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list, err := r.load(realm)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Provider == provider && strings.EqualFold(list[i].Username, username) {
			return &list[i], nil
		}
	}
	return nil, nil
}

func (r *accountRepo) FindAccountBySubject(ctx context.Context, subject string) (*core.InternalAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries, err := os.ReadDir((*Store)(r).realmsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		list, err := r.load(e.Name())
		if err != nil {
			return nil, err
		}
		for i := range list {
			if list[i].Subject == subject {
				return &list[i], nil
			}
		}
	}
	return nil, nil
}

func (r *accountRepo) ListAccounts(ctx context.Context, realm, provider string) ([]core.InternalAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list, err := r.load(realm)
	if err != nil {
		return nil, err
	}
	out := list[:0]
	for _, a := range list {
		if a.Provider == provider {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *accountRepo) SaveAccount(ctx context.Context, a *core.InternalAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list, err := r.load(a.Realm)
	if err != nil {
		return err
	}
	replaced := false
	for i := range list {
		if list[i].Provider == a.Provider && strings.EqualFold(list[i].Username, a.Username) {
			list[i] = *a
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, *a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Username < list[j].Username })
	return writeYAML((*Store)(r).accountsFile(a.Realm), list)
}

func (r *accountRepo) DeleteAccount(ctx context.Context, realm, provider, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list, err := r.load(realm)
	if err != nil {
		return err
	}
	out := list[:0]
	for _, a := range list {
		if !(a.Provider == provider && strings.EqualFold(a.Username, username)) {
			out = append(out, a)
		}
	}
	return writeYAML((*Store)(r).accountsFile(realm), out)
}
