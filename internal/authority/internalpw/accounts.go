package internalpw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/observability/logger"
	"github.com/dropDatabas3/idbroker/internal/security/password"
	"github.com/dropDatabas3/idbroker/internal/store"
	"github.com/dropDatabas3/idbroker/internal/util"
)

var (
	ErrNoSuchAccount   = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrKeyExpired      = errors.New("key expired or invalid")
	ErrEmailNotDefined = errors.New("account has no email")
)

const (
	confirmationTTL = 24 * time.Hour
	resetTTL        = 1 * time.Hour
)

// Accounts maneja las cuentas del provider interno sobre el AccountRepository
// compartido. Es stateless: cada operación va directo al repo. El mailer es
// opcional (nil = flujos de email apagados).
type Accounts struct {
	repo   store.AccountRepository
	mailer Mailer
	params password.Params
}

func NewAccounts(repo store.AccountRepository, mailer Mailer) *Accounts {
	return &Accounts{repo: repo, mailer: mailer, params: password.Default}
}

// Find busca por (realm, provider, username). (nil, nil) si no existe.
func (s *Accounts) Find(ctx context.Context, realm, provider, username string) (*core.InternalAccount, error) {
	return s.repo.FindAccount(ctx, realm, provider, strings.ToLower(username))
}

func (s *Accounts) FindBySubject(ctx context.Context, subject string) (*core.InternalAccount, error) {
	return s.repo.FindAccountBySubject(ctx, subject)
}

func (s *Accounts) List(ctx context.Context, realm, provider string) ([]core.InternalAccount, error) {
	return s.repo.ListAccounts(ctx, realm, provider)
}

// Create registra una cuenta nueva con password en claro (se hashea acá).
// Si confirmationRequired, genera una key de confirmación y manda el mail.
func (s *Accounts) Create(ctx context.Context, acc *core.InternalAccount, plain string, confirmationRequired bool) error {
	acc.Username = strings.ToLower(strings.TrimSpace(acc.Username))
	if acc.Username == "" {
		return fmt.Errorf("empty username")
	}
	existing, err := s.repo.FindAccount(ctx, acc.Realm, acc.Provider, acc.Username)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAccountExists
	}

	if acc.Subject == "" {
		acc.Subject = uuid.NewString()
	}
	if plain != "" {
		hash, err := password.Hash(s.params, plain)
		if err != nil {
			return err
		}
		acc.PasswordHash = hash
	}

	now := time.Now()
	acc.CreatedAt = now
	acc.UpdatedAt = now

	if confirmationRequired && s.mailer != nil {
		if acc.Email == "" {
			return ErrEmailNotDefined
		}
		acc.Confirmed = false
		acc.ConfirmationKey = uuid.NewString()
		dl := now.Add(confirmationTTL)
		acc.ConfirmationDeadline = &dl
	} else {
		acc.Confirmed = true
	}

	if err := s.repo.SaveAccount(ctx, acc); err != nil {
		return err
	}

	if acc.ConfirmationKey != "" {
		s.sendConfirmation(acc)
	}
	return nil
}

// Confirm consume la confirmation key si sigue vigente.
func (s *Accounts) Confirm(ctx context.Context, realm, provider, username, key string) error {
	acc, err := s.Find(ctx, realm, provider, username)
	if err != nil {
		return err
	}
	if acc == nil {
		return ErrNoSuchAccount
	}
	if acc.ConfirmationKey == "" || acc.ConfirmationKey != key {
		return ErrKeyExpired
	}
	if acc.ConfirmationDeadline != nil && time.Now().After(*acc.ConfirmationDeadline) {
		return ErrKeyExpired
	}
	acc.Confirmed = true
	acc.ConfirmationKey = ""
	acc.ConfirmationDeadline = nil
	acc.UpdatedAt = time.Now()
	return s.repo.SaveAccount(ctx, acc)
}

// RequestReset genera una reset key y manda el mail. No revela si la cuenta
// existe: not-found retorna nil.
func (s *Accounts) RequestReset(ctx context.Context, realm, provider, username string) error {
	acc, err := s.Find(ctx, realm, provider, username)
	if err != nil {
		return err
	}
	if acc == nil || acc.Email == "" {
		return nil
	}
	acc.ResetKey = uuid.NewString()
	dl := time.Now().Add(resetTTL)
	acc.ResetDeadline = &dl
	acc.UpdatedAt = time.Now()
	if err := s.repo.SaveAccount(ctx, acc); err != nil {
		return err
	}
	if s.mailer != nil {
		subject := "Password reset"
		body := fmt.Sprintf("Reset key: %s (expires %s)", acc.ResetKey, dl.Format(time.RFC3339))
		if err := s.mailer.Send(acc.Email, subject, "", body); err != nil {
			logger.Named("accounts").Warn("reset mail failed",
				logger.Realm(realm), logger.Email(util.MaskEmail(acc.Email)), logger.Err(err))
		}
	}
	return nil
}

// ResetPassword consume la reset key y setea el password nuevo.
func (s *Accounts) ResetPassword(ctx context.Context, realm, provider, username, key, plain string) error {
	acc, err := s.Find(ctx, realm, provider, username)
	if err != nil {
		return err
	}
	if acc == nil {
		return ErrNoSuchAccount
	}
	if acc.ResetKey == "" || acc.ResetKey != key {
		return ErrKeyExpired
	}
	if acc.ResetDeadline != nil && time.Now().After(*acc.ResetDeadline) {
		return ErrKeyExpired
	}
	hash, err := password.Hash(s.params, plain)
	if err != nil {
		return err
	}
	acc.PasswordHash = hash
	acc.ResetKey = ""
	acc.ResetDeadline = nil
	acc.ChangeOnFirstAccess = false
	acc.UpdatedAt = time.Now()
	return s.repo.SaveAccount(ctx, acc)
}

// SetPasswordBySubject re-hashea y persiste, limpiando keys pendientes: un
// cambio de password invalida cualquier flujo de email en curso.
func (s *Accounts) SetPasswordBySubject(ctx context.Context, subject, plain string) error {
	acc, err := s.repo.FindAccountBySubject(ctx, subject)
	if err != nil {
		return err
	}
	if acc == nil {
		return ErrNoSuchAccount
	}
	hash, err := password.Hash(s.params, plain)
	if err != nil {
		return err
	}
	acc.PasswordHash = hash
	acc.ResetKey = ""
	acc.ResetDeadline = nil
	acc.ChangeOnFirstAccess = false
	acc.UpdatedAt = time.Now()
	return s.repo.SaveAccount(ctx, acc)
}

func (s *Accounts) VerifyPassword(ctx context.Context, acc *core.InternalAccount, plain string) (bool, error) {
	if acc.PasswordHash == "" {
		return false, nil
	}
	return password.Verify(plain, acc.PasswordHash), nil
}

// Normalize deja la cuenta en el estado canónico que el bootstrap declara:
// password re-hasheado desde el claro del manifest, confirmada, sin keys
// pendientes. Crea la cuenta si no existe (subject nuevo). Idempotente salvo
// por el salt del hash.
func (s *Accounts) Normalize(ctx context.Context, acc *core.InternalAccount, plain string) error {
	acc.Username = strings.ToLower(strings.TrimSpace(acc.Username))
	existing, err := s.repo.FindAccount(ctx, acc.Realm, acc.Provider, acc.Username)
	if err != nil {
		return err
	}
	now := time.Now()
	if existing != nil {
		acc.Subject = existing.Subject
		acc.CreatedAt = existing.CreatedAt
	} else {
		if acc.Subject == "" {
			acc.Subject = uuid.NewString()
		}
		acc.CreatedAt = now
	}
	if plain != "" {
		hash, err := password.Hash(s.params, plain)
		if err != nil {
			return err
		}
		acc.PasswordHash = hash
	} else if existing != nil {
		acc.PasswordHash = existing.PasswordHash
	}
	acc.Confirmed = true
	acc.ConfirmationKey = ""
	acc.ConfirmationDeadline = nil
	acc.ResetKey = ""
	acc.ResetDeadline = nil
	acc.ChangeOnFirstAccess = false
	acc.UpdatedAt = now
	return s.repo.SaveAccount(ctx, acc)
}

func (s *Accounts) Delete(ctx context.Context, realm, provider, username string) error {
	return s.repo.DeleteAccount(ctx, realm, provider, strings.ToLower(username))
}

func (s *Accounts) sendConfirmation(acc *core.InternalAccount) {
	if s.mailer == nil || acc.Email == "" {
		return
	}
	subject := "Confirm your account"
	body := fmt.Sprintf("Confirmation key: %s", acc.ConfirmationKey)
	if err := s.mailer.Send(acc.Email, subject, "", body); err != nil {
		logger.Named("accounts").Warn("confirmation mail failed",
			logger.Realm(acc.Realm), logger.Email(util.MaskEmail(acc.Email)), logger.Err(err))
	}
}
