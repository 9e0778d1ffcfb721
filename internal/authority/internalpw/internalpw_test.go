package internalpw

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/store/memory"
)

type sentMail struct{ to, subject string }

type fakeMailer struct{ sent []sentMail }

func (f *fakeMailer) Send(to, subject, _, _ string) error {
	f.sent = append(f.sent, sentMail{to: to, subject: subject})
	return nil
}

func newTestAuthority(t *testing.T, mailer Mailer) *Authority {
	t.Helper()
	return New(memory.New().Accounts(), nil, mailer)
}

func registerProvider(t *testing.T, a *Authority, cfg map[string]any) *Provider {
	t.Helper()
	cp := &core.ConfigurableProvider{
		Type:          core.TypeIdentity,
		Authority:     AuthorityID,
		Provider:      "int-1",
		Realm:         "acme",
		Configuration: cfg,
	}
	inst, err := a.Register(context.Background(), cp)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return inst.(*Provider)
}

func TestAuthenticateHappyPath(t *testing.T) {
	a := newTestAuthority(t, nil)
	p := registerProvider(t, a, map[string]any{"confirmationRequired": false})
	ctx := context.Background()

	acc := &core.InternalAccount{Realm: "acme", Provider: "int-1", Username: "alice", Email: "a@example.com"}
	if err := a.Accounts().Create(ctx, acc, "pass-1234", false); err != nil {
		t.Fatalf("Create: %v", err)
	}

	id, err := p.Authenticate(ctx, map[string]string{"username": "Alice", "password": "pass-1234"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.Subject != acc.Subject || id.Realm != "acme" || id.Provider != "int-1" {
		t.Fatalf("identidad inesperada: %+v", id)
	}

	if _, err := p.Authenticate(ctx, map[string]string{"username": "alice", "password": "mala"}); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("password incorrecto: quería ErrBadCredentials, vino %v", err)
	}
	if _, err := p.Authenticate(ctx, map[string]string{"username": "nadie", "password": "x"}); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("user inexistente: quería ErrBadCredentials, vino %v", err)
	}
}

func TestAuthenticateUnconfirmedBlocked(t *testing.T) {
	m := &fakeMailer{}
	a := newTestAuthority(t, m)
	p := registerProvider(t, a, nil) // confirmationRequired default true
	ctx := context.Background()

	acc := &core.InternalAccount{Realm: "acme", Provider: "int-1", Username: "bob", Email: "b@example.com"}
	if err := a.Accounts().Create(ctx, acc, "pass-1234", true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(m.sent) != 1 {
		t.Fatalf("mails enviados = %d, quería 1", len(m.sent))
	}
	if acc.ConfirmationKey == "" {
		t.Fatal("falta la confirmation key")
	}

	if _, err := p.Authenticate(ctx, map[string]string{"username": "bob", "password": "pass-1234"}); !errors.Is(err, ErrAccountUnconfirmed) {
		t.Fatalf("quería ErrAccountUnconfirmed, vino %v", err)
	}

	if err := a.Accounts().Confirm(ctx, "acme", "int-1", "bob", acc.ConfirmationKey); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := p.Authenticate(ctx, map[string]string{"username": "bob", "password": "pass-1234"}); err != nil {
		t.Fatalf("post-confirm: %v", err)
	}
}

func TestConfirmWrongKey(t *testing.T) {
	a := newTestAuthority(t, &fakeMailer{})
	ctx := context.Background()
	acc := &core.InternalAccount{Realm: "acme", Provider: "int-1", Username: "eva", Email: "e@example.com"}
	if err := a.Accounts().Create(ctx, acc, "pass-1234", true); err != nil {
		t.Fatal(err)
	}
	if err := a.Accounts().Confirm(ctx, "acme", "int-1", "eva", "key-falsa"); !errors.Is(err, ErrKeyExpired) {
		t.Fatalf("quería ErrKeyExpired, vino %v", err)
	}
}

func TestResetPasswordFlow(t *testing.T) {
	a := newTestAuthority(t, &fakeMailer{})
	p := registerProvider(t, a, map[string]any{"confirmationRequired": false})
	ctx := context.Background()

	acc := &core.InternalAccount{Realm: "acme", Provider: "int-1", Username: "carol", Email: "c@example.com"}
	if err := a.Accounts().Create(ctx, acc, "vieja-pass", false); err != nil {
		t.Fatal(err)
	}
	if err := a.Accounts().RequestReset(ctx, "acme", "int-1", "carol"); err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	stored, _ := a.Accounts().Find(ctx, "acme", "int-1", "carol")
	if stored.ResetKey == "" {
		t.Fatal("falta la reset key")
	}

	if err := a.Accounts().ResetPassword(ctx, "acme", "int-1", "carol", stored.ResetKey, "nueva-pass"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := p.Authenticate(ctx, map[string]string{"username": "carol", "password": "nueva-pass"}); err != nil {
		t.Fatalf("login con password nuevo: %v", err)
	}
	if _, err := p.Authenticate(ctx, map[string]string{"username": "carol", "password": "vieja-pass"}); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("el password viejo sigue valiendo: %v", err)
	}
	// la key se consume
	after, _ := a.Accounts().Find(ctx, "acme", "int-1", "carol")
	if after.ResetKey != "" {
		t.Fatal("la reset key no se consumió")
	}
}

// RequestReset no revela existencia de cuentas.
func TestRequestResetUnknownUserSilent(t *testing.T) {
	a := newTestAuthority(t, &fakeMailer{})
	if err := a.Accounts().RequestReset(context.Background(), "acme", "int-1", "fantasma"); err != nil {
		t.Fatalf("quería nil para cuenta inexistente, vino %v", err)
	}
}

func TestSessionTokenSignedWithConfiguredSecret(t *testing.T) {
	a := newTestAuthority(t, nil)
	p := registerProvider(t, a, map[string]any{
		"confirmationRequired": false,
		"sessionSecret":        "un-secreto-de-dieciseis",
		"maxSessionMinutes":    60,
	})

	tok, err := p.SessionToken("sub-1")
	if err != nil {
		t.Fatalf("SessionToken: %v", err)
	}
	parsed, err := jwt.Parse(tok, func(t *jwt.Token) (any, error) {
		return []byte("un-secreto-de-dieciseis"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token no verifica: %v", err)
	}
	sub, _ := parsed.Claims.GetSubject()
	if sub != "sub-1" {
		t.Fatalf("sub = %q", sub)
	}
}

func TestCredentialsService(t *testing.T) {
	a := newTestAuthority(t, nil)
	p := registerProvider(t, a, map[string]any{"confirmationRequired": false})
	ctx := context.Background()

	acc := &core.InternalAccount{Realm: "acme", Provider: "int-1", Username: "dave", Email: "d@example.com"}
	if err := a.Accounts().Create(ctx, acc, "inicial-123", false); err != nil {
		t.Fatal(err)
	}

	if err := p.SetPassword(ctx, acc.Subject, "rotada-456"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	ok, err := p.VerifyPassword(ctx, acc.Subject, "rotada-456")
	if err != nil || !ok {
		t.Fatalf("VerifyPassword nueva = %v, %v", ok, err)
	}
	ok, _ = p.VerifyPassword(ctx, acc.Subject, "inicial-123")
	if ok {
		t.Fatal("el password viejo sigue verificando")
	}
}

func TestCreateDuplicate(t *testing.T) {
	a := newTestAuthority(t, nil)
	ctx := context.Background()
	acc := &core.InternalAccount{Realm: "acme", Provider: "int-1", Username: "dup"}
	if err := a.Accounts().Create(ctx, acc, "pass-1234", false); err != nil {
		t.Fatal(err)
	}
	again := &core.InternalAccount{Realm: "acme", Provider: "int-1", Username: "DUP"}
	if err := a.Accounts().Create(ctx, again, "pass-1234", false); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("quería ErrAccountExists, vino %v", err)
	}
}
