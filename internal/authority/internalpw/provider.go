package internalpw

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/idbroker/internal/authority"
	"github.com/dropDatabas3/idbroker/internal/core"
)

var (
	ErrBadCredentials     = errors.New("invalid username or password")
	ErrAccountUnconfirmed = errors.New("account not confirmed")
)

const defaultSessionMinutes = 720

// Provider es la instancia viva de la familia internal. Construida desde un
// snapshot de configuración; ediciones posteriores no la afectan.
type Provider struct {
	key      core.ProviderKey
	accounts *Accounts

	confirmationRequired bool
	sessionTTL           time.Duration
	sessionSecret        []byte
}

var (
	_ authority.IdentityProvider   = (*Provider)(nil)
	_ authority.CredentialsService = (*Provider)(nil)
)

func newProvider(cp *core.ConfigurableProvider, accounts *Accounts) (*Provider, error) {
	p := &Provider{
		key:                  cp.Key(),
		accounts:             accounts,
		confirmationRequired: true,
		sessionTTL:           defaultSessionMinutes * time.Minute,
	}
	if v, ok := cp.Configuration["confirmationRequired"].(bool); ok {
		p.confirmationRequired = v
	}
	if v, ok := asInt(cp.Configuration["maxSessionMinutes"]); ok {
		p.sessionTTL = time.Duration(v) * time.Minute
	}
	if v, ok := cp.Configuration["sessionSecret"].(string); ok && v != "" {
		p.sessionSecret = []byte(v)
	} else {
		// sin secret configurado se genera uno efímero: las sesiones no
		// sobreviven un re-register
		p.sessionSecret = []byte(randomSecret())
	}
	return p, nil
}

func (p *Provider) Key() core.ProviderKey { return p.key }
func (p *Provider) AuthorityID() string   { return AuthorityID }
func (p *Provider) Type() string          { return core.TypeIdentity }

// Authenticate resuelve username+password contra el account store del scope
// (realm, provider).
func (p *Provider) Authenticate(ctx context.Context, credentials map[string]string) (*authority.Identity, error) {
	username := credentials["username"]
	plain := credentials["password"]
	if username == "" || plain == "" {
		return nil, ErrBadCredentials
	}

	acc, err := p.accounts.Find(ctx, p.key.Realm, p.key.Provider, username)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ErrBadCredentials
	}
	if p.confirmationRequired && !acc.Confirmed {
		return nil, ErrAccountUnconfirmed
	}
	ok, err := p.accounts.VerifyPassword(ctx, acc, plain)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBadCredentials
	}

	return &authority.Identity{
		Subject:    acc.Subject,
		Realm:      p.key.Realm,
		Provider:   p.key.Provider,
		Username:   acc.Username,
		Email:      acc.Email,
		Attributes: acc.Attributes,
	}, nil
}

// SessionToken emite un JWT HS256 de sesión para un subject ya autenticado.
func (p *Provider) SessionToken(subject string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iss": fmt.Sprintf("idbroker/%s/%s", p.key.Realm, p.key.Provider),
		"iat": now.Unix(),
		"exp": now.Add(p.sessionTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.sessionSecret)
}

// ===== CredentialsService =====

func (p *Provider) SetPassword(ctx context.Context, subject, plain string) error {
	return p.accounts.SetPasswordBySubject(ctx, subject, plain)
}

func (p *Provider) VerifyPassword(ctx context.Context, subject, plain string) (bool, error) {
	acc, err := p.accounts.FindBySubject(ctx, subject)
	if err != nil || acc == nil {
		return false, err
	}
	return p.accounts.VerifyPassword(ctx, acc, plain)
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}
