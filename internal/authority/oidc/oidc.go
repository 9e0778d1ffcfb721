// Package oidcauth implementa la authority "oidc": login federado contra un
// issuer OpenID Connect externo. La discovery corre en Register, así que un
// issuer caído hace fallar el registro (all-or-nothing) sin dejar instancia.
package oidcauth

import (
	"context"
	"fmt"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/dropDatabas3/idbroker/internal/authority"
	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/schema"
)

const AuthorityID = "oidc"

const configSchema = `{
	"type": "object",
	"properties": {
		"issuer":       {"type": "string", "minLength": 1},
		"clientId":     {"type": "string", "minLength": 1},
		"clientSecret": {"type": "string"},
		"redirectUrl":  {"type": "string"},
		"scopes":       {"type": "array", "items": {"type": "string"}},
		"subjectClaim": {"type": "string"},
		"trustEmailAddress": {"type": "boolean"}
	},
	"required": ["issuer", "clientId", "clientSecret"],
	"additionalProperties": false
}`

type Authority struct {
	*authority.Base
}

func New(validator *schema.Validator) *Authority {
	a := &Authority{}
	a.Base = authority.NewBase(AuthorityID, core.TypeIdentity, configSchema, validator, newProvider)
	return a
}

// Provider es una instancia viva: discovery ya resuelta, verifier y config
// OAuth2 listos para los adapters de protocolo.
type Provider struct {
	key          core.ProviderKey
	issuer       string
	subjectClaim string
	trustEmail   bool

	rp           *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

var _ authority.IdentityProvider = (*Provider)(nil)

func newProvider(ctx context.Context, cp *core.ConfigurableProvider) (authority.LiveProvider, error) {
	issuer, _ := cp.Configuration["issuer"].(string)
	clientID, _ := cp.Configuration["clientId"].(string)
	clientSecret, _ := cp.Configuration["clientSecret"].(string)

	// Discovery: .well-known/openid-configuration + JWKS. I/O bloqueante,
	// acotado por el ctx del caller.
	rp, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery %q: %w", issuer, err)
	}

	verifier := rp.Verifier(&gooidc.Config{ClientID: clientID})

	scopes := []string{gooidc.ScopeOpenID, "profile", "email"}
	if raw, ok := cp.Configuration["scopes"].([]any); ok && len(raw) > 0 {
		scopes = scopes[:0]
		for _, s := range raw {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
	}
	redirectURL, _ := cp.Configuration["redirectUrl"].(string)

	p := &Provider{
		key:          cp.Key(),
		issuer:       issuer,
		subjectClaim: "sub",
		rp:           rp,
		verifier:     verifier,
		oauth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     rp.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       scopes,
		},
	}
	if v, ok := cp.Configuration["subjectClaim"].(string); ok && v != "" {
		p.subjectClaim = v
	}
	if v, ok := cp.Configuration["trustEmailAddress"].(bool); ok {
		p.trustEmail = v
	}
	return p, nil
}

func (p *Provider) Key() core.ProviderKey { return p.key }
func (p *Provider) AuthorityID() string   { return AuthorityID }
func (p *Provider) Type() string          { return core.TypeIdentity }

// Issuer retorna el issuer descubierto (para los adapters HTTP).
func (p *Provider) Issuer() string { return p.issuer }

// AuthCodeURL arma la URL de autorización para el flujo code.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Authenticate cierra el flujo: canjea el code ("code") o verifica un
// id_token crudo ("idToken") y mapea los claims a una identidad local.
func (p *Provider) Authenticate(ctx context.Context, credentials map[string]string) (*authority.Identity, error) {
	rawIDToken := credentials["idToken"]
	if code := credentials["code"]; code != "" {
		tok, err := p.oauth2Config.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("code exchange: %w", err)
		}
		raw, ok := tok.Extra("id_token").(string)
		if !ok {
			return nil, fmt.Errorf("missing id_token in token response")
		}
		rawIDToken = raw
	}
	if rawIDToken == "" {
		return nil, fmt.Errorf("missing code or idToken")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("id_token verify: %w", err)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("id_token claims: %w", err)
	}

	subject, _ := claims[p.subjectClaim].(string)
	if subject == "" {
		subject = idToken.Subject
	}
	username, _ := claims["preferred_username"].(string)
	email, _ := claims["email"].(string)
	if !p.trustEmail {
		if verified, ok := claims["email_verified"].(bool); ok && !verified {
			email = ""
		}
	}
	if username == "" {
		username = email
	}

	attrs := make(map[string]any, len(claims))
	for k, v := range claims {
		if strings.HasPrefix(k, "_") {
			continue
		}
		attrs[k] = v
	}

	return &authority.Identity{
		Subject:    subject,
		Realm:      p.key.Realm,
		Provider:   p.key.Provider,
		Username:   username,
		Email:      email,
		Attributes: attrs,
	}, nil
}
