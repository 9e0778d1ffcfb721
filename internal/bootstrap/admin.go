package bootstrap

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/observability/logger"
	"github.com/dropDatabas3/idbroker/internal/util"
)

// AdminProviderID es el provider interno del realm system donde viven las
// cuentas administrativas del broker.
const AdminProviderID = "admin"

const minAdminPasswordLen = 10

// AdminOptions controla EnsureAdmin. Con SkipPrompt en true (tests, corridas
// no interactivas) Username y Password son obligatorios.
type AdminOptions struct {
	SkipPrompt bool
	Username   string
	Password   string
}

// EnsureAdmin garantiza que exista al menos una cuenta administrativa en el
// realm system. Si no hay ninguna pide las credenciales por terminal (o las
// toma de opts) y la crea ya confirmada. Con admins existentes es un no-op.
func (o *Orchestrator) EnsureAdmin(ctx context.Context, opts AdminOptions) error {
	existing, err := o.accounts.List(ctx, core.RealmSystem, AdminProviderID)
	if err != nil {
		return fmt.Errorf("check existing admins: %w", err)
	}
	if len(existing) > 0 {
		logger.Named("bootstrap").Debug("admin account present, skipping prompt",
			logger.Count(len(existing)))
		return nil
	}

	username, plain := opts.Username, opts.Password
	if opts.SkipPrompt {
		if username == "" || plain == "" {
			return fmt.Errorf("non-interactive admin bootstrap requires username and password")
		}
	} else if username == "" || plain == "" {
		fmt.Println("No admin account found. Creating the first one.")
		username, plain, err = promptAdminCredentials()
		if err != nil {
			return fmt.Errorf("prompt admin credentials: %w", err)
		}
	}
	if len(plain) < minAdminPasswordLen {
		return fmt.Errorf("admin password must be at least %d characters", minAdminPasswordLen)
	}

	acc := &core.InternalAccount{
		Realm:    core.RealmSystem,
		Provider: AdminProviderID,
		Username: username,
	}
	if strings.Contains(username, "@") {
		acc.Email = username
	}
	// Normalize deja la cuenta confirmada y con el password hasheado.
	if err := o.accounts.Normalize(ctx, acc, plain); err != nil {
		return fmt.Errorf("create admin account: %w", err)
	}
	logger.Named("bootstrap").Info("admin account created",
		logger.Realm(core.RealmSystem), logger.Provider(AdminProviderID),
		logger.Subject(acc.Subject), logger.Email(util.MaskEmail(acc.Email)))
	return nil
}

func promptAdminCredentials() (username, password string, err error) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Admin username (or email): ")
	username, err = reader.ReadString('\n')
	if err != nil {
		return "", "", err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return "", "", fmt.Errorf("username cannot be empty")
	}

	fmt.Printf("Admin password (min %d chars): ", minAdminPasswordLen)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", "", err
	}
	if len(pw) < minAdminPasswordLen {
		return "", "", fmt.Errorf("password must be at least %d characters", minAdminPasswordLen)
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", "", err
	}
	if string(pw) != string(confirm) {
		return "", "", fmt.Errorf("passwords do not match")
	}
	return username, string(pw), nil
}
