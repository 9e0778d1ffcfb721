package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dropDatabas3/idbroker/internal/authority"
	"github.com/dropDatabas3/idbroker/internal/authority/internalpw"
	"github.com/dropDatabas3/idbroker/internal/cache"
	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/manager"
	"github.com/dropDatabas3/idbroker/internal/realm"
	"github.com/dropDatabas3/idbroker/internal/security/password"
	"github.com/dropDatabas3/idbroker/internal/store/memory"
)

type bootInstance struct{ key core.ProviderKey }

func (b *bootInstance) Key() core.ProviderKey { return b.key }
func (b *bootInstance) AuthorityID() string   { return "fake" }
func (b *bootInstance) Type() string          { return core.TypeIdentity }

type fixture struct {
	store    *memory.Store
	realms   *realm.Service
	manager  *manager.Manager
	auth     *authority.Base
	accounts *internalpw.Accounts
}

// el builder falla cuando la config trae "fail": true; así los tests declaran
// providers rotos sin tocar el schema
func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()

	build := func(_ context.Context, cp *core.ConfigurableProvider) (authority.LiveProvider, error) {
		if v, ok := cp.Configuration["fail"].(bool); ok && v {
			return nil, errors.New("simulated external failure")
		}
		return &bootInstance{key: cp.Key()}, nil
	}
	auth := authority.NewBase("fake", core.TypeIdentity, "", nil, build)
	reg := authority.NewRegistry(auth)

	realms := realm.New(st.Realms(), cache.New(cache.Config{Driver: "memory"}))
	mgr := manager.New(realms, st.Providers(), reg)
	accounts := internalpw.NewAccounts(st.Accounts(), nil)

	return &fixture{store: st, realms: realms, manager: mgr, auth: auth, accounts: accounts}
}

func (f *fixture) orchestrator(opts Options) *Orchestrator {
	return New(f.realms, f.manager, f.store, f.accounts, opts)
}

// seedProvider deja un provider persistido con enabled explícito (estado que
// el bootstrap tiene que reconciliar al arrancar).
func (f *fixture) seedProvider(t *testing.T, realmSlug, id string, enabled, broken bool) {
	t.Helper()
	cfg := map[string]any{}
	if broken {
		cfg["fail"] = true
	}
	cp := core.ConfigurableProvider{
		Type:          core.TypeIdentity,
		Authority:     "fake",
		Provider:      id,
		Realm:         realmSlug,
		Enabled:       enabled,
		Configuration: cfg,
	}
	if err := f.store.Providers().SaveProvider(context.Background(), &cp); err != nil {
		t.Fatalf("seed provider %s/%s: %v", realmSlug, id, err)
	}
}

func (f *fixture) seedRealm(t *testing.T, slug string) {
	t.Helper()
	if _, err := f.realms.Add(context.Background(), core.Realm{Slug: slug, Name: slug}); err != nil {
		t.Fatalf("seed realm %s: %v", slug, err)
	}
}

// Fase tenant con validez mixta: la falla de un provider no arrastra ni a sus
// vecinos de realm ni a otros realms.
func TestTenantPhaseMixedValidity(t *testing.T) {
	f := newFixture(t)
	f.seedRealm(t, "realm-uno")
	f.seedRealm(t, "realm-dos")

	f.seedProvider(t, "realm-uno", "ok-1", true, false)
	f.seedProvider(t, "realm-uno", "roto", true, true)
	f.seedProvider(t, "realm-dos", "ok-2", true, false)
	f.seedProvider(t, "realm-dos", "apagado", false, false)

	res, err := f.orchestrator(Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.TenantRegistered != 2 {
		t.Fatalf("TenantRegistered = %d, quería 2", res.TenantRegistered)
	}
	if res.TenantFailed != 1 {
		t.Fatalf("TenantFailed = %d, quería 1", res.TenantFailed)
	}
	if !f.auth.IsRegistered("realm-uno", "ok-1") {
		t.Fatal("ok-1 no quedó registrado")
	}
	if !f.auth.IsRegistered("realm-dos", "ok-2") {
		t.Fatal("ok-2 no quedó registrado")
	}
	if f.auth.IsRegistered("realm-uno", "roto") {
		t.Fatal("el provider roto quedó registrado")
	}
	if f.auth.IsRegistered("realm-dos", "apagado") {
		t.Fatal("un provider deshabilitado quedó registrado")
	}
}

// La fase system corre antes que la tenant y también registra.
func TestSystemPhase(t *testing.T) {
	f := newFixture(t)
	f.seedProvider(t, core.RealmSystem, "sys-1", true, false)
	f.seedProvider(t, core.RealmSystem, "sys-roto", true, true)

	res, err := f.orchestrator(Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.SystemRegistered != 1 {
		t.Fatalf("SystemRegistered = %d, quería 1", res.SystemRegistered)
	}
	if res.SystemFailed != 1 {
		t.Fatalf("SystemFailed = %d, quería 1", res.SystemFailed)
	}
	if !f.auth.IsRegistered(core.RealmSystem, "sys-1") {
		t.Fatal("sys-1 no quedó registrado")
	}
}

// Re-correr el bootstrap con todo ya registrado es un no-op limpio.
func TestRunIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedRealm(t, "realm-uno")
	f.seedProvider(t, "realm-uno", "ok-1", true, false)

	o := f.orchestrator(Options{})
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("primera corrida: %v", err)
	}
	res, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("segunda corrida: %v", err)
	}
	if res.TenantFailed != 0 {
		t.Fatalf("segunda corrida falló items: %d", res.TenantFailed)
	}
	if !f.auth.IsRegistered("realm-uno", "ok-1") {
		t.Fatal("ok-1 desapareció en la segunda corrida")
	}
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const manifestOK = `
realms:
  - slug: acme-corp
    name: Acme Corp
providers:
  - realm: acme-corp
    type: identity
    authority: fake
    provider: fake-login
    enabled: true
    configuration: {}
services:
  - realm: acme-corp
    serviceId: core-api
    namespace: api.acme.example.com
clients:
  - realm: acme-corp
    clientId: webapp
    type: public
users:
  - realm: acme-corp
    provider: fake-login
    username: Admin
    email: admin@acme.example.com
    password: s3cret-pass
`

func TestManifestApply(t *testing.T) {
	f := newFixture(t)
	path := writeManifest(t, manifestOK)

	res, err := f.orchestrator(Options{ApplyManifest: true, ManifestPath: path}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ManifestFailed != 0 {
		t.Fatalf("ManifestFailed = %d", res.ManifestFailed)
	}
	// realm + provider + service + client + user
	if res.ManifestApplied != 5 {
		t.Fatalf("ManifestApplied = %d, quería 5", res.ManifestApplied)
	}

	ctx := context.Background()
	if ok, _ := f.realms.Exists(ctx, "acme-corp"); !ok {
		t.Fatal("el realm del manifest no existe")
	}
	if !f.auth.IsRegistered("acme-corp", "fake-login") {
		t.Fatal("el provider del manifest no quedó registrado")
	}
	svc, err := f.store.Services().FindService(ctx, "acme-corp", "core-api")
	if err != nil || svc == nil {
		t.Fatalf("service: %v %v", svc, err)
	}
	cl, err := f.store.Clients().FindClient(ctx, "acme-corp", "webapp")
	if err != nil || cl == nil {
		t.Fatalf("client: %v %v", cl, err)
	}

	// usuario normalizado: confirmado, sin keys, password verificable,
	// username en minúsculas
	acc, err := f.store.Accounts().FindAccount(ctx, "acme-corp", "fake-login", "admin")
	if err != nil || acc == nil {
		t.Fatalf("account: %v %v", acc, err)
	}
	if !acc.Confirmed {
		t.Fatal("la cuenta no quedó confirmada")
	}
	if acc.ConfirmationKey != "" || acc.ResetKey != "" {
		t.Fatal("quedaron keys pendientes")
	}
	if acc.ChangeOnFirstAccess {
		t.Fatal("change_on_first_access no se limpió")
	}
	if !password.Verify("s3cret-pass", acc.PasswordHash) {
		t.Fatal("el hash no verifica contra el password del manifest")
	}
}

// La re-aplicación normaliza de nuevo: keys sembradas fuera de banda se
// limpian y el subject se conserva.
func TestManifestReapplyNormalizes(t *testing.T) {
	f := newFixture(t)
	path := writeManifest(t, manifestOK)
	ctx := context.Background()

	o := f.orchestrator(Options{ApplyManifest: true, ManifestPath: path})
	if _, err := o.Run(ctx); err != nil {
		t.Fatalf("primera corrida: %v", err)
	}
	first, _ := f.store.Accounts().FindAccount(ctx, "acme-corp", "fake-login", "admin")

	// estado sucio fuera de banda
	first.Confirmed = false
	first.ConfirmationKey = "pendiente"
	first.ResetKey = "pendiente"
	first.ChangeOnFirstAccess = true
	if err := f.store.Accounts().SaveAccount(ctx, first); err != nil {
		t.Fatal(err)
	}

	if _, err := o.Run(ctx); err != nil {
		t.Fatalf("segunda corrida: %v", err)
	}
	second, _ := f.store.Accounts().FindAccount(ctx, "acme-corp", "fake-login", "admin")
	if second.Subject != first.Subject {
		t.Fatal("la re-aplicación cambió el subject")
	}
	if !second.Confirmed || second.ConfirmationKey != "" || second.ResetKey != "" || second.ChangeOnFirstAccess {
		t.Fatal("la re-aplicación no normalizó el estado de credenciales")
	}
}

const manifestBrokenChain = `
realms:
  - slug: ok-realm
    name: OK
  - slug: XX
    name: slug inválido
providers:
  - realm: ok-realm
    type: identity
    authority: fake
    provider: roto
    enabled: true
    configuration: {fail: true}
  - realm: XX
    type: identity
    authority: fake
    provider: huérfano
    enabled: true
    configuration: {}
users:
  - realm: ok-realm
    provider: roto
    username: bloqueado
    email: b@example.com
    password: x-123456
  - realm: XX
    provider: huérfano
    username: tampoco
    email: t@example.com
    password: x-123456
`

// Dependencias rotas en cadena: el provider de un realm fallido se saltea sin
// intentarse, y los users de realm/provider fallidos también.
func TestManifestSkipsDependentsOfFailures(t *testing.T) {
	f := newFixture(t)
	path := writeManifest(t, manifestBrokenChain)
	ctx := context.Background()

	res, err := f.orchestrator(Options{ApplyManifest: true, ManifestPath: path}).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// aplicado: solo el realm ok. fallado: realm XX, provider roto (register),
	// provider huérfano (skip), user bloqueado (skip), user tampoco (skip)
	if res.ManifestApplied != 1 {
		t.Fatalf("ManifestApplied = %d, quería 1", res.ManifestApplied)
	}
	if res.ManifestFailed != 5 {
		t.Fatalf("ManifestFailed = %d, quería 5", res.ManifestFailed)
	}

	if f.auth.IsRegistered("ok-realm", "roto") {
		t.Fatal("el provider roto quedó registrado")
	}
	if acc, _ := f.store.Accounts().FindAccount(ctx, "ok-realm", "roto", "bloqueado"); acc != nil {
		t.Fatal("se creó el user de un provider fallido")
	}
	if acc, _ := f.store.Accounts().FindAccount(ctx, "XX", "huérfano", "tampoco"); acc != nil {
		t.Fatal("se creó el user de un realm fallido")
	}
}

// Un manifest que no existe no es un error: la fase se saltea y el resto de
// la corrida vale. Un manifest presente pero mal formado sí aborta.
func TestManifestMissingFileSkipsPhase(t *testing.T) {
	f := newFixture(t)
	f.seedRealm(t, "acme-corp")
	f.seedProvider(t, "acme-corp", "p1", true, false)

	res, err := f.orchestrator(Options{ApplyManifest: true, ManifestPath: "/no/existe.yaml"}).Run(context.Background())
	if err != nil {
		t.Fatalf("manifest ausente no debe abortar: %v", err)
	}
	if res.TenantRegistered != 1 {
		t.Fatalf("la fase tenant tiene que haber corrido igual: %+v", res)
	}
	if res.ManifestApplied != 0 || res.ManifestFailed != 0 {
		t.Fatalf("fase manifest salteada debe quedar en cero: %+v", res)
	}
}

func TestManifestUnparseableIsFatal(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "boot.yaml")
	if err := os.WriteFile(path, []byte("realms: [no cierra"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := f.orchestrator(Options{ApplyManifest: true, ManifestPath: path}).Run(context.Background())
	if err == nil {
		t.Fatal("quería error con manifest mal formado")
	}
}
