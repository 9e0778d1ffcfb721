package core

import "time"

// InternalAccount es una cuenta del provider interno (password store).
// Scoped a (realm, provider); Username único dentro de ese scope.
//
// ConfirmationKey/ResetKey son tokens pendientes de flujos de email; el
// bootstrap declarativo los limpia en cada corrida (normalización de estado
// de credenciales).
type InternalAccount struct {
	Subject  string `json:"subject" yaml:"subject"`
	Realm    string `json:"realm" yaml:"realm"`
	Provider string `json:"provider" yaml:"provider"`
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email,omitempty" yaml:"email,omitempty"`

	// PasswordHash en formato PHC (argon2id). Nunca el plaintext.
	PasswordHash string `json:"passwordHash,omitempty" yaml:"passwordHash,omitempty"`

	Confirmed            bool       `json:"confirmed" yaml:"confirmed"`
	ConfirmationKey      string     `json:"confirmationKey,omitempty" yaml:"confirmationKey,omitempty"`
	ConfirmationDeadline *time.Time `json:"confirmationDeadline,omitempty" yaml:"confirmationDeadline,omitempty"`
	ResetKey             string     `json:"resetKey,omitempty" yaml:"resetKey,omitempty"`
	ResetDeadline        *time.Time `json:"resetDeadline,omitempty" yaml:"resetDeadline,omitempty"`
	ChangeOnFirstAccess  bool       `json:"changeOnFirstAccess,omitempty" yaml:"changeOnFirstAccess,omitempty"`

	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}
