package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/idbroker/internal/authority"
	"github.com/dropDatabas3/idbroker/internal/authority/attrs"
	"github.com/dropDatabas3/idbroker/internal/authority/internalpw"
	oidcauth "github.com/dropDatabas3/idbroker/internal/authority/oidc"
	samlauth "github.com/dropDatabas3/idbroker/internal/authority/saml"
	webauthnauth "github.com/dropDatabas3/idbroker/internal/authority/webauthn"
	"github.com/dropDatabas3/idbroker/internal/bootstrap"
	"github.com/dropDatabas3/idbroker/internal/cache"
	"github.com/dropDatabas3/idbroker/internal/config"
	adminhttp "github.com/dropDatabas3/idbroker/internal/http/admin"
	"github.com/dropDatabas3/idbroker/internal/manager"
	"github.com/dropDatabas3/idbroker/internal/metrics"
	"github.com/dropDatabas3/idbroker/internal/observability/logger"
	"github.com/dropDatabas3/idbroker/internal/realm"
	"github.com/dropDatabas3/idbroker/internal/schema"
	"github.com/dropDatabas3/idbroker/internal/store"
	fsstore "github.com/dropDatabas3/idbroker/internal/store/fs"
	memstore "github.com/dropDatabas3/idbroker/internal/store/memory"
	pgstore "github.com/dropDatabas3/idbroker/internal/store/pg"
)

func main() {
	var (
		configPath string
		envFile    string
	)

	root := &cobra.Command{
		Use:   "idbroker",
		Short: "Multi-tenant identity broker",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env opcional, nunca fatal
			if envFile != "" {
				_ = godotenv.Load(envFile)
			} else {
				_ = godotenv.Load()
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "ruta del config yaml")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "ruta del .env (default: ./.env si existe)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Corre bootstrap y levanta el admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	var (
		createAdmin bool
		adminUser   string
		adminPass   string
	)
	boot := &cobra.Command{
		Use:   "bootstrap",
		Short: "Corre solo el bootstrap (incluye manifest si está habilitado) y termina",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBootstrapOnly(cmd.Context(), configPath, bootstrapFlags{
				createAdmin: createAdmin,
				adminUser:   adminUser,
				adminPass:   adminPass,
			})
		},
	}
	boot.Flags().BoolVar(&createAdmin, "create-admin", false, "crea la primera cuenta admin del realm system si no existe")
	boot.Flags().StringVar(&adminUser, "admin-user", "", "username del admin (vacío: prompt interactivo)")
	boot.Flags().StringVar(&adminPass, "admin-pass", "", "password del admin (vacío: prompt interactivo)")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de esquema pendientes (solo driver postgres)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), configPath)
		},
	}

	root.AddCommand(serve, boot, migrate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// wiring arma el grafo completo: store → realm service → authorities →
// registry → manager → orchestrator.
type wiring struct {
	cfg          *config.Config
	store        store.Store
	realms       *realm.Service
	manager      *manager.Manager
	orchestrator *bootstrap.Orchestrator
}

func wire(ctx context.Context, configPath string) (*wiring, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		// sin archivo de config se arranca con defaults + env
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: %w", err)
		}
		cfg, err = config.Load("")
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "idbroker"})
	if err := metrics.Register(nil); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	var st store.Store
	switch cfg.Storage.Driver {
	case "postgres":
		st, err = pgstore.New(ctx, cfg.Storage.Postgres.DSN, pgstore.Config{
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			ConnMaxLifetime: cfg.PGConnMaxLifetime(),
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
	case "memory":
		st = memstore.New()
	default:
		st = fsstore.New(cfg.Storage.FS.Root)
	}

	c := cache.New(cache.Config{
		Driver:     cfg.Cache.Driver,
		RedisAddr:  cfg.Cache.Redis.Addr,
		RedisDB:    cfg.Cache.Redis.DB,
		DefaultTTL: cfg.CacheTTL(),
	})
	realms := realm.New(st.Realms(), c)

	var mailer internalpw.Mailer
	if cfg.SMTP.Host != "" {
		m := internalpw.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.User, cfg.SMTP.Pass)
		m.TLSMode = cfg.SMTP.TLSMode
		mailer = m
	}

	validator := schema.NewValidator()
	internalAuth := internalpw.New(st.Accounts(), validator, mailer)
	registry := authority.NewRegistry(
		internalAuth,
		oidcauth.New(validator),
		samlauth.New(validator),
		webauthnauth.New(st.Accounts(), validator),
		attrs.NewInternal(st.Accounts(), validator),
		attrs.NewWebhook(validator),
	)

	mgr := manager.New(realms, st.Providers(), registry)

	orch := bootstrap.New(realms, mgr, st, internalAuth.Accounts(), bootstrap.Options{
		Parallelism:     cfg.Bootstrap.Parallelism,
		RegisterTimeout: cfg.RegisterTimeout(),
		ApplyManifest:   cfg.Bootstrap.Apply,
		ManifestPath:    cfg.Bootstrap.File,
	})

	return &wiring{cfg: cfg, store: st, realms: realms, manager: mgr, orchestrator: orch}, nil
}

func runServe(ctx context.Context, configPath string) error {
	w, err := wire(ctx, configPath)
	if err != nil {
		return err
	}
	defer w.store.Close()
	defer logger.Sync()
	log := logger.Named("main")

	res, err := w.orchestrator.Run(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	log.Info("bootstrap complete",
		logger.Count(res.SystemRegistered+res.TenantRegistered+res.ManifestApplied))

	r := chi.NewRouter()
	r.Mount("/admin", adminhttp.Router(adminhttp.Deps{Realms: w.realms, Manager: w.manager}))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              w.cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", logger.Op(w.cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("config: %w", err)
		}
		cfg, err = config.Load("")
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("migrate requires storage.driver=postgres (got %q)", cfg.Storage.Driver)
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "idbroker"})
	defer logger.Sync()

	st, err := pgstore.New(ctx, cfg.Storage.Postgres.DSN, pgstore.Config{
		MaxConns:        cfg.Storage.Postgres.MaxConns,
		ConnMaxLifetime: cfg.PGConnMaxLifetime(),
	})
	if err != nil {
		return fmt.Errorf("postgres store: %w", err)
	}
	defer st.Close()
	return st.Migrate(ctx)
}

type bootstrapFlags struct {
	createAdmin bool
	adminUser   string
	adminPass   string
}

func runBootstrapOnly(ctx context.Context, configPath string, flags bootstrapFlags) error {
	w, err := wire(ctx, configPath)
	if err != nil {
		return err
	}
	defer w.store.Close()
	defer logger.Sync()

	res, err := w.orchestrator.Run(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	logger.Named("main").Info("bootstrap complete",
		logger.Count(res.SystemRegistered+res.TenantRegistered+res.ManifestApplied))
	if res.SystemFailed+res.TenantFailed+res.ManifestFailed > 0 {
		logger.Named("main").Warn("bootstrap finished with item failures",
			logger.Count(res.SystemFailed+res.TenantFailed+res.ManifestFailed))
	}

	if flags.createAdmin {
		opts := bootstrap.AdminOptions{Username: flags.adminUser, Password: flags.adminPass}
		if opts.Username != "" && opts.Password != "" {
			opts.SkipPrompt = true
		}
		if err := w.orchestrator.EnsureAdmin(ctx, opts); err != nil {
			return fmt.Errorf("admin bootstrap: %w", err)
		}
	}
	return nil
}
