// Package webauthnauth implementa la authority "webauthn": passkeys scoped
// al provider. La config del relying party se valida y compila en Register;
// un RP ID u origin inválido hace fallar el registro.
package webauthnauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/dropDatabas3/idbroker/internal/authority"
	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/schema"
	"github.com/dropDatabas3/idbroker/internal/store"
)

const AuthorityID = "webauthn"

const configSchema = `{
	"type": "object",
	"properties": {
		"rpId":          {"type": "string", "minLength": 1},
		"rpDisplayName": {"type": "string"},
		"rpOrigins":     {"type": "array", "items": {"type": "string"}, "minItems": 1}
	},
	"required": ["rpId", "rpOrigins"],
	"additionalProperties": false
}`

type Authority struct {
	*authority.Base
}

func New(repo store.AccountRepository, validator *schema.Validator) *Authority {
	a := &Authority{}
	a.Base = authority.NewBase(AuthorityID, core.TypeIdentity, configSchema, validator,
		func(ctx context.Context, cp *core.ConfigurableProvider) (authority.LiveProvider, error) {
			return newProvider(cp, repo)
		})
	return a
}

type Provider struct {
	key  core.ProviderKey
	wa   *webauthn.WebAuthn
	repo store.AccountRepository
}

var _ authority.IdentityProvider = (*Provider)(nil)

func newProvider(cp *core.ConfigurableProvider, repo store.AccountRepository) (*Provider, error) {
	rpID, _ := cp.Configuration["rpId"].(string)
	displayName, _ := cp.Configuration["rpDisplayName"].(string)
	if displayName == "" {
		displayName = cp.Name
	}
	var origins []string
	if raw, ok := cp.Configuration["rpOrigins"].([]any); ok {
		for _, o := range raw {
			if s, ok := o.(string); ok {
				origins = append(origins, s)
			}
		}
	}

	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: displayName,
		RPID:          rpID,
		RPOrigins:     origins,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn config: %w", err)
	}

	return &Provider{key: cp.Key(), wa: wa, repo: repo}, nil
}

func (p *Provider) Key() core.ProviderKey { return p.key }
func (p *Provider) AuthorityID() string   { return AuthorityID }
func (p *Provider) Type() string          { return core.TypeIdentity }

// waUser adapta una cuenta interna al contrato webauthn.User. Las
// credenciales viven serializadas en los atributos de la cuenta bajo
// "webauthnCredentials".
type waUser struct {
	account *core.InternalAccount
	creds   []webauthn.Credential
}

func (u *waUser) WebAuthnID() []byte                         { return []byte(u.account.Subject) }
func (u *waUser) WebAuthnName() string                       { return u.account.Username }
func (u *waUser) WebAuthnDisplayName() string                { return u.account.Username }
func (u *waUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func loadUser(acc *core.InternalAccount) (*waUser, error) {
	u := &waUser{account: acc}
	raw, ok := acc.Attributes["webauthnCredentials"].(string)
	if !ok || raw == "" {
		return u, nil
	}
	if err := json.Unmarshal([]byte(raw), &u.creds); err != nil {
		return nil, fmt.Errorf("stored credentials: %w", err)
	}
	return u, nil
}

// BeginLogin inicia la ceremonia de assertion para un username conocido.
// Retorna las options (para el cliente) y la session data (para el caller,
// que la guarda opaca hasta FinishLogin).
func (p *Provider) BeginLogin(ctx context.Context, username string) (json.RawMessage, json.RawMessage, error) {
	acc, err := p.repo.FindAccount(ctx, p.key.Realm, p.key.Provider, username)
	if err != nil {
		return nil, nil, err
	}
	if acc == nil {
		return nil, nil, fmt.Errorf("unknown user")
	}
	user, err := loadUser(acc)
	if err != nil {
		return nil, nil, err
	}
	options, session, err := p.wa.BeginLogin(user)
	if err != nil {
		return nil, nil, fmt.Errorf("begin login: %w", err)
	}
	optJSON, err := json.Marshal(options)
	if err != nil {
		return nil, nil, err
	}
	sessJSON, err := json.Marshal(session)
	if err != nil {
		return nil, nil, err
	}
	return optJSON, sessJSON, nil
}

// Authenticate cierra la ceremonia: espera "username", "session" (la session
// data de BeginLogin) y "response" (la assertion del cliente, JSON crudo).
func (p *Provider) Authenticate(ctx context.Context, credentials map[string]string) (*authority.Identity, error) {
	username := credentials["username"]
	sessJSON := credentials["session"]
	respJSON := credentials["response"]
	if username == "" || sessJSON == "" || respJSON == "" {
		return nil, fmt.Errorf("missing username, session or response")
	}

	acc, err := p.repo.FindAccount(ctx, p.key.Realm, p.key.Provider, username)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("unknown user")
	}
	user, err := loadUser(acc)
	if err != nil {
		return nil, err
	}

	var session webauthn.SessionData
	if err := json.Unmarshal([]byte(sessJSON), &session); err != nil {
		return nil, fmt.Errorf("session data: %w", err)
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader([]byte(respJSON)))
	if err != nil {
		return nil, fmt.Errorf("assertion parse: %w", err)
	}
	cred, err := p.wa.ValidateLogin(user, session, parsed)
	if err != nil {
		return nil, fmt.Errorf("assertion validation: %w", err)
	}
	if cred.Authenticator.CloneWarning {
		return nil, fmt.Errorf("credential clone detected")
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
