package memory

import (
	"context"
	"testing"

	"github.com/dropDatabas3/idbroker/internal/core"
)

func TestProviderIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()

	cp := &core.ConfigurableProvider{
		Type: core.TypeIdentity, Authority: "fake", Provider: "p1", Realm: "acme",
		Configuration: map[string]any{"k": "v"},
	}
	if err := s.Providers().SaveProvider(ctx, cp); err != nil {
		t.Fatal(err)
	}

	// mutar el original o el leído no toca lo guardado
	cp.Configuration["k"] = "mutado"
	got, _ := s.Providers().FindProvider(ctx, "acme", "p1")
	if got.Configuration["k"] != "v" {
		t.Fatal("el store comparte el mapa con el caller")
	}
	got.Configuration["k"] = "otra"
	again, _ := s.Providers().FindProvider(ctx, "acme", "p1")
	if again.Configuration["k"] != "v" {
		t.Fatal("el store comparte el mapa con el lector")
	}
}

func TestSaveProviderClearsRegistered(t *testing.T) {
	s := New()
	ctx := context.Background()
	cp := &core.ConfigurableProvider{
		Type: core.TypeIdentity, Authority: "fake", Provider: "p1", Realm: "acme",
		Registered: true,
	}
	if err := s.Providers().SaveProvider(ctx, cp); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Providers().FindProvider(ctx, "acme", "p1")
	if got.Registered {
		t.Fatal("registered es derivado y no debe persistirse")
	}
}

func TestListProvidersFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed := []core.ConfigurableProvider{
		{Type: core.TypeIdentity, Authority: "a", Provider: "p1", Realm: "acme"},
		{Type: core.TypeAttribute, Authority: "b", Provider: "p2", Realm: "acme"},
		{Type: core.TypeIdentity, Authority: "a", Provider: "p3", Realm: "otro-realm"},
	}
	for i := range seed {
		if err := s.Providers().SaveProvider(ctx, &seed[i]); err != nil {
			t.Fatal(err)
		}
	}

	all, _ := s.Providers().ListProviders(ctx, "acme", "")
	if len(all) != 2 {
		t.Fatalf("acme sin filtro = %d", len(all))
	}
	ids, _ := s.Providers().ListProviders(ctx, "acme", core.TypeIdentity)
	if len(ids) != 1 || ids[0].Provider != "p1" {
		t.Fatalf("filtro identity = %+v", ids)
	}
}

func TestAccountsCaseInsensitiveKey(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Accounts().SaveAccount(ctx, &core.InternalAccount{
		Subject: "s1", Realm: "acme", Provider: "int", Username: "Alice",
	}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Accounts().FindAccount(ctx, "acme", "int", "alice")
	if got == nil {
		t.Fatal("lookup case-insensitive falló")
	}
	bySub, _ := s.Accounts().FindAccountBySubject(ctx, "s1")
	if bySub == nil {
		t.Fatal("FindAccountBySubject falló")
	}
}

func TestNotFoundIsNilNil(t *testing.T) {
	s := New()
	ctx := context.Background()
	if r, err := s.Realms().FindRealm(ctx, "x"); r != nil || err != nil {
		t.Fatal("realm not-found")
	}
	if p, err := s.Providers().FindProvider(ctx, "x", "y"); p != nil || err != nil {
		t.Fatal("provider not-found")
	}
	if a, err := s.Accounts().FindAccount(ctx, "x", "y", "z"); a != nil || err != nil {
		t.Fatal("account not-found")
	}
	if sv, err := s.Services().FindService(ctx, "x", "y"); sv != nil || err != nil {
		t.Fatal("service not-found")
	}
	if c, err := s.Clients().FindClient(ctx, "x", "y"); c != nil || err != nil {
		t.Fatal("client not-found")
	}
}
