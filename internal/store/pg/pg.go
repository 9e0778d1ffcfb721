// Package pg implementa store.Store sobre Postgres con pgx. Los maps
// (configuration, attributes) van en columnas JSONB. Ver migraciones en
// migrations/postgres.
package pg

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/store"
)

type Store struct{ pool *pgxpool.Pool }

var _ store.Store = (*Store)(nil)

type Config struct {
	MaxConns        int
	ConnMaxLifetime time.Duration
}

func New(ctx context.Context, dsn string, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Realms() store.RealmRepository       { return (*realmRepo)(s) }
func (s *Store) Providers() store.ProviderRepository { return (*providerRepo)(s) }
func (s *Store) Services() store.ServiceRepository   { return (*serviceRepo)(s) }
func (s *Store) Clients() store.ClientRepository     { return (*clientRepo)(s) }
func (s *Store) Accounts() store.AccountRepository   { return (*accountRepo)(s) }

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// ===== realms =====

type realmRepo Store

func (r *realmRepo) ListRealms(ctx context.Context) ([]core.Realm, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT slug, name, public, editable, created_at, updated_at
		FROM realms ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Realm
	for rows.Next() {
		var rm core.Realm
		if err := rows.Scan(&rm.Slug, &rm.Name, &rm.Public, &rm.Editable, &rm.CreatedAt, &rm.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

func (r *realmRepo) FindRealm(ctx context.Context, slug string) (*core.Realm, error) {
	var rm core.Realm
	err := r.pool.QueryRow(ctx, `
		SELECT slug, name, public, editable, created_at, updated_at
		FROM realms WHERE slug = $1`, slug).
		Scan(&rm.Slug, &rm.Name, &rm.Public, &rm.Editable, &rm.CreatedAt, &rm.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rm, nil
}

func (r *realmRepo) SaveRealm(ctx context.Context, rm *core.Realm) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO realms (slug, name, public, editable, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (slug)
		DO UPDATE SET name = EXCLUDED.name, public = EXCLUDED.public,
		              editable = EXCLUDED.editable, updated_at = NOW()`,
		rm.Slug, rm.Name, rm.Public, rm.Editable)
	return err
}

func (r *realmRepo) DeleteRealm(ctx context.Context, slug string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM realms WHERE slug = $1`, slug)
	return err
}

// ===== providers =====

type providerRepo Store

const providerCols = `type, authority, provider, realm, name, description, enabled,
	persistence, configuration, linkable, attribute_sets, hook_functions, created_at, updated_at`

func scanProvider(row pgx.Row) (*core.ConfigurableProvider, error) {
	var p core.ConfigurableProvider
	var cfg, hooks []byte
	err := row.Scan(&p.Type, &p.Authority, &p.Provider, &p.Realm, &p.Name, &p.Description,
		&p.Enabled, &p.Persistence, &cfg, &p.Linkable, &p.AttributeSets, &hooks,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &p.Configuration); err != nil {
			return nil, err
		}
	}
	if len(hooks) > 0 {
		if err := json.Unmarshal(hooks, &p.HookFunctions); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (r *providerRepo) ListProviders(ctx context.Context, realm, typ string) ([]core.ConfigurableProvider, error) {
	q := `SELECT ` + providerCols + ` FROM providers WHERE realm = $1`
	args := []any{realm}
	if typ != "" {
		q += ` AND type = $2`
		args = append(args, typ)
	}
	q += ` ORDER BY provider`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ConfigurableProvider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *providerRepo) FindProvider(ctx context.Context, realm, providerID string) (*core.ConfigurableProvider, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+providerCols+` FROM providers WHERE realm = $1 AND provider = $2`,
		realm, providerID)
	p, err := scanProvider(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *providerRepo) SaveProvider(ctx context.Context, p *core.ConfigurableProvider) error {
	cfg, err := json.Marshal(p.Configuration)
	if err != nil {
		return err
	}
	hooks, err := json.Marshal(p.HookFunctions)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO providers (type, authority, provider, realm, name, description, enabled,
		                       persistence, configuration, linkable, attribute_sets, hook_functions,
		                       created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW())
		ON CONFLICT (realm, provider)
		DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
		              enabled = EXCLUDED.enabled, persistence = EXCLUDED.persistence,
		              configuration = EXCLUDED.configuration, linkable = EXCLUDED.linkable,
		              attribute_sets = EXCLUDED.attribute_sets,
		              hook_functions = EXCLUDED.hook_functions, updated_at = NOW()`,
		p.Type, p.Authority, p.Provider, p.Realm, p.Name, p.Description, p.Enabled,
		p.Persistence, cfg, p.Linkable, p.AttributeSets, hooks)
	return err
}

func (r *providerRepo) DeleteProvider(ctx context.Context, realm, providerID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM providers WHERE realm = $1 AND provider = $2`,
		realm, providerID)
	return err
}

// ===== services =====

type serviceRepo Store

func (r *serviceRepo) FindService(ctx context.Context, realm, serviceID string) (*core.Service, error) {
	var s core.Service
	err := r.pool.QueryRow(ctx, `
		SELECT service_id, realm, namespace, name, description
		FROM services WHERE realm = $1 AND service_id = $2`, realm, serviceID).
		Scan(&s.ServiceID, &s.Realm, &s.Namespace, &s.Name, &s.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *serviceRepo) SaveService(ctx context.Context, s *core.Service) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (service_id, realm, namespace, name, description)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (realm, service_id)
		DO UPDATE SET namespace = EXCLUDED.namespace, name = EXCLUDED.name,
		              description = EXCLUDED.description`,
		s.ServiceID, s.Realm, s.Namespace, s.Name, s.Description)
	return err
}

// ===== clients =====

type clientRepo Store

func (r *clientRepo) FindClient(ctx context.Context, realm, clientID string) (*core.ClientApp, error) {
	var c core.ClientApp
	err := r.pool.QueryRow(ctx, `
		SELECT client_id, realm, name, type, redirect_uris, scopes, providers
		FROM clients WHERE realm = $1 AND client_id = $2`, realm, clientID).
		Scan(&c.ClientID, &c.Realm, &c.Name, &c.Type, &c.RedirectURIs, &c.Scopes, &c.Providers)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *clientRepo) SaveClient(ctx context.Context, c *core.ClientApp) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO clients (client_id, realm, name, type, redirect_uris, scopes, providers)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (realm, client_id)
		DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type,
		              redirect_uris = EXCLUDED.redirect_uris, scopes = EXCLUDED.scopes,
		              providers = EXCLUDED.providers`,
		c.ClientID, c.Realm, c.Name, c.Type, c.RedirectURIs, c.Scopes, c.Providers)
	return err
}

// ===== accounts =====

type accountRepo Store

const accountCols = `subject, realm, provider, username, email, password_hash, confirmed,
	confirmation_key, confirmation_deadline, reset_key, reset_deadline,
	change_on_first_access, attributes, created_at, updated_at`

func scanAccount(row pgx.Row) (*core.InternalAccount, error) {
	var a core.InternalAccount
	var attrs []byte
	err := row.Scan(&a.Subject, &a.Realm, &a.Provider, &a.Username, &a.Email, &a.PasswordHash,
		&a.Confirmed, &a.ConfirmationKey, &a.ConfirmationDeadline, &a.ResetKey, &a.ResetDeadline,
		&a.ChangeOnFirstAccess, &attrs, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &a.Attributes); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func (r *accountRepo) FindAccount(ctx context.Context, realm, provider, username string) (*core.InternalAccount, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountCols+` FROM internal_accounts
		WHERE realm = $1 AND provider = $2 AND lower(username) = lower($3)`,
		realm, provider, username)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *accountRepo) FindAccountBySubject(ctx context.Context, subject string) (*core.InternalAccount, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountCols+` FROM internal_accounts WHERE subject = $1`, subject)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *accountRepo) ListAccounts(ctx context.Context, realm, provider string) ([]core.InternalAccount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+accountCols+` FROM internal_accounts
		WHERE realm = $1 AND provider = $2 ORDER BY username`, realm, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.InternalAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *accountRepo) SaveAccount(ctx context.Context, a *core.InternalAccount) error {
	attrs, err := json.Marshal(a.Attributes)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO internal_accounts (subject, realm, provider, username, email, password_hash,
		                               confirmed, confirmation_key, confirmation_deadline,
		                               reset_key, reset_deadline, change_on_first_access,
		                               attributes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW())
		ON CONFLICT (realm, provider, username)
		DO UPDATE SET email = EXCLUDED.email, password_hash = EXCLUDED.password_hash,
		              confirmed = EXCLUDED.confirmed,
		              confirmation_key = EXCLUDED.confirmation_key,
		              confirmation_deadline = EXCLUDED.confirmation_deadline,
		              reset_key = EXCLUDED.reset_key, reset_deadline = EXCLUDED.reset_deadline,
		              change_on_first_access = EXCLUDED.change_on_first_access,
		              attributes = EXCLUDED.attributes, updated_at = NOW()`,
		a.Subject, a.Realm, a.Provider, a.Username, a.Email, a.PasswordHash,
		a.Confirmed, a.ConfirmationKey, a.ConfirmationDeadline,
		a.ResetKey, a.ResetDeadline, a.ChangeOnFirstAccess, attrs)
	return err
}

func (r *accountRepo) DeleteAccount(ctx context.Context, realm, provider, username string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM internal_accounts
		WHERE realm = $1 AND provider = $2 AND lower(username) = lower($3)`,
		realm, provider, username)
	return err
}
