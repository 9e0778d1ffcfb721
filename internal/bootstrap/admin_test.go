package bootstrap

import (
	"context"
	"testing"

	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/security/password"
)

func TestEnsureAdminCreatesFirstAccount(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(Options{})
	ctx := context.Background()

	err := o.EnsureAdmin(ctx, AdminOptions{
		SkipPrompt: true,
		Username:   "root@example.com",
		Password:   "super-segura-123",
	})
	if err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}

	acc, err := f.accounts.Find(ctx, core.RealmSystem, AdminProviderID, "root@example.com")
	if err != nil || acc == nil {
		t.Fatalf("cuenta admin no encontrada: (%v, %v)", acc, err)
	}
	if !acc.Confirmed {
		t.Fatal("la cuenta admin debe quedar confirmada")
	}
	if acc.Email != "root@example.com" {
		t.Fatalf("email = %q", acc.Email)
	}
	if !password.Verify("super-segura-123", acc.PasswordHash) {
		t.Fatal("el password no verifica")
	}
}

func TestEnsureAdminIdempotent(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(Options{})
	ctx := context.Background()

	opts := AdminOptions{SkipPrompt: true, Username: "root", Password: "super-segura-123"}
	if err := o.EnsureAdmin(ctx, opts); err != nil {
		t.Fatal(err)
	}
	// segunda corrida: ya hay admin, no pide nada y no toca la cuenta
	if err := o.EnsureAdmin(ctx, AdminOptions{SkipPrompt: true, Username: "otro", Password: "otra-pass-larga"}); err != nil {
		t.Fatalf("segunda corrida: %v", err)
	}
	accs, err := f.accounts.List(ctx, core.RealmSystem, AdminProviderID)
	if err != nil {
		t.Fatal(err)
	}
	if len(accs) != 1 {
		t.Fatalf("cuentas admin = %d, quería 1", len(accs))
	}
}

func TestEnsureAdminRejectsShortPassword(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(Options{})
	err := o.EnsureAdmin(context.Background(), AdminOptions{SkipPrompt: true, Username: "root", Password: "corta"})
	if err == nil {
		t.Fatal("password corto aceptado")
	}
}

func TestEnsureAdminNonInteractiveNeedsCredentials(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(Options{})
	if err := o.EnsureAdmin(context.Background(), AdminOptions{SkipPrompt: true}); err == nil {
		t.Fatal("SkipPrompt sin credenciales debe fallar")
	}
}
