package realm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dropDatabas3/idbroker/internal/cache"
	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/store/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(memory.New().Realms(), cache.New(cache.Config{Driver: "memory", DefaultTTL: time.Minute}))
}

func TestAddAndGet(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	r, err := s.Add(ctx, core.Realm{Slug: "acme-corp"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if r.Name != "acme-corp" {
		t.Fatalf("Name debería defaultear al slug, vino %q", r.Name)
	}

	got, err := s.Get(ctx, "acme-corp")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Slug != "acme-corp" {
		t.Fatalf("slug = %q", got.Slug)
	}
}

func TestAddInvalidSlug(t *testing.T) {
	s := newTestService(t)
	for _, slug := range []string{"", "AB", "Con-Mayus", "con espacios", "-empieza-mal"} {
		if _, err := s.Add(context.Background(), core.Realm{Slug: slug}); !errors.Is(err, core.ErrInvalidSlug) {
			t.Fatalf("slug %q: quería ErrInvalidSlug, vino %v", slug, err)
		}
	}
}

func TestSystemSlugReserved(t *testing.T) {
	s := newTestService(t)
	if _, err := s.Add(context.Background(), core.Realm{Slug: core.RealmSystem}); !errors.Is(err, core.ErrInvalidSlug) {
		t.Fatalf("quería ErrInvalidSlug para el realm system, vino %v", err)
	}
	if err := s.Delete(context.Background(), core.RealmSystem); !errors.Is(err, core.ErrInvalidSlug) {
		t.Fatalf("delete del realm system: quería ErrInvalidSlug, vino %v", err)
	}
	// Exists siempre true para system aunque no esté persistido.
	ok, err := s.Exists(context.Background(), core.RealmSystem)
	if err != nil || !ok {
		t.Fatalf("Exists(system) = %v, %v", ok, err)
	}
}

func TestAddDuplicate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if _, err := s.Add(ctx, core.Realm{Slug: "dup-realm"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(ctx, core.Realm{Slug: "dup-realm"}); !errors.Is(err, core.ErrRealmExists) {
		t.Fatalf("quería ErrRealmExists, vino %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestService(t)
	if _, err := s.Get(context.Background(), "no-existe"); !errors.Is(err, core.ErrNoSuchRealm) {
		t.Fatalf("quería ErrNoSuchRealm, vino %v", err)
	}
	r, err := s.Find(context.Background(), "no-existe")
	if err != nil || r != nil {
		t.Fatalf("Find de ausente debe ser (nil, nil), vino (%v, %v)", r, err)
	}
}

func TestUpdateKeepsSlug(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if _, err := s.Add(ctx, core.Realm{Slug: "tenant-a"}); err != nil {
		t.Fatal(err)
	}
	upd, err := s.Update(ctx, "tenant-a", core.Realm{Slug: "otro-slug", Name: "Tenant A", Public: true})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if upd.Slug != "tenant-a" {
		t.Fatalf("el slug cambió: %q", upd.Slug)
	}
	if upd.Name != "Tenant A" || !upd.Public {
		t.Fatalf("campos mutables no aplicados: %+v", upd)
	}
}

func TestDeleteInvalidatesCache(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if _, err := s.Add(ctx, core.Realm{Slug: "efimero"}); err != nil {
		t.Fatal(err)
	}
	// calienta el cache
	if _, err := s.Get(ctx, "efimero"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "efimero"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	r, err := s.Find(ctx, "efimero")
	if err != nil || r != nil {
		t.Fatalf("el realm sigue visible tras el delete: (%v, %v)", r, err)
	}
	if err := s.Delete(ctx, "efimero"); !errors.Is(err, core.ErrNoSuchRealm) {
		t.Fatalf("delete repetido: quería ErrNoSuchRealm, vino %v", err)
	}
}
