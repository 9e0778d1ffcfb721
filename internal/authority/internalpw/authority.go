// Package internalpw implementa la authority "internal": identidad por
// usuario/contraseña contra el account store propio del broker. Es la única
// familia que además implementa CredentialsService.
package internalpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/dropDatabas3/idbroker/internal/authority"
	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/schema"
	"github.com/dropDatabas3/idbroker/internal/store"
)

const AuthorityID = "internal"

// configSchema: todo opcional; la authority funciona sin configuración.
const configSchema = `{
	"type": "object",
	"properties": {
		"enableRegistration":   {"type": "boolean"},
		"confirmationRequired": {"type": "boolean"},
		"maxSessionMinutes":    {"type": "integer", "minimum": 1},
		"sessionSecret":        {"type": "string", "minLength": 16}
	},
	"additionalProperties": false
}`

// Authority arma providers internos sobre el AccountRepository compartido.
type Authority struct {
	*authority.Base
	accounts *Accounts
}

func New(repo store.AccountRepository, validator *schema.Validator, mailer Mailer) *Authority {
	accounts := NewAccounts(repo, mailer)
	a := &Authority{accounts: accounts}
	a.Base = authority.NewBase(AuthorityID, core.TypeIdentity, configSchema, validator,
		func(ctx context.Context, cp *core.ConfigurableProvider) (authority.LiveProvider, error) {
			return newProvider(cp, accounts)
		})
	return a
}

// Accounts expone el account service (lo usa el bootstrap declarativo para
// normalizar usuarios).
func (a *Authority) Accounts() *Accounts { return a.accounts }

func randomSecret() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
