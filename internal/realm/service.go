// Package realm administra los tenants: alta/baja/listado con validación de
// slug y un read cache para los existence-checks calientes (cada operación
// del ProviderManager chequea que el realm exista).
package realm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropDatabas3/idbroker/internal/cache"
	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/observability/logger"
	"github.com/dropDatabas3/idbroker/internal/store"
)

const cacheTTL = 2 * time.Minute

type Service struct {
	repo  store.RealmRepository
	cache cache.Cache
}

// New arma el service. c puede ser nil (sin cache, todas las lecturas van
// al repo).
func New(repo store.RealmRepository, c cache.Cache) *Service {
	return &Service{repo: repo, cache: c}
}

// List retorna todos los realms, orden estable por slug.
func (s *Service) List(ctx context.Context) ([]core.Realm, error) {
	return s.repo.ListRealms(ctx)
}

// Find busca por slug; (nil, nil) si no existe.
func (s *Service) Find(ctx context.Context, slug string) (*core.Realm, error) {
	if s.cache != nil {
		if b, ok := s.cache.Get("realm:" + slug); ok {
			var r core.Realm
			if json.Unmarshal(b, &r) == nil {
				return &r, nil
			}
		}
	}
	r, err := s.repo.FindRealm(ctx, slug)
	if err != nil || r == nil {
		return r, err
	}
	s.cachePut(r)
	return r, nil
}

// Get es Find pero con ErrNoSuchRealm en vez de nil.
func (s *Service) Get(ctx context.Context, slug string) (*core.Realm, error) {
	r, err := s.Find(ctx, slug)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrNoSuchRealm, slug)
	}
	return r, nil
}

// Exists reporta si el slug existe (incluye el realm system).
func (s *Service) Exists(ctx context.Context, slug string) (bool, error) {
	if slug == core.RealmSystem {
		return true, nil
	}
	r, err := s.Find(ctx, slug)
	return r != nil, err
}

// Add crea un realm. El slug es inmutable y debe cumplir el patrón; el slug
// del realm system está reservado.
func (s *Service) Add(ctx context.Context, r core.Realm) (*core.Realm, error) {
	if !core.ValidSlug(r.Slug) {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidSlug, r.Slug)
	}
	if r.Slug == core.RealmSystem {
		return nil, fmt.Errorf("%w: %q is reserved", core.ErrInvalidSlug, r.Slug)
	}
	existing, err := s.repo.FindRealm(ctx, r.Slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrRealmExists, r.Slug)
	}
	if r.Name == "" {
		r.Name = r.Slug
	}
	if err := s.repo.SaveRealm(ctx, &r); err != nil {
		return nil, err
	}
	s.cachePut(&r)
	logger.From(ctx).Info("realm created", logger.Realm(r.Slug))
	return &r, nil
}

// Update reemplaza los campos mutables (name, public, editable). El slug no
// cambia nunca.
func (s *Service) Update(ctx context.Context, slug string, r core.Realm) (*core.Realm, error) {
	existing, err := s.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	existing.Name = r.Name
	existing.Public = r.Public
	existing.Editable = r.Editable
	if err := s.repo.SaveRealm(ctx, existing); err != nil {
		return nil, err
	}
	s.cachePut(existing)
	return existing, nil
}

// Delete borra el realm. La cascada sobre providers/services/clients la
// resuelven los colaboradores; acá solo se invalida el cache.
func (s *Service) Delete(ctx context.Context, slug string) error {
	if slug == core.RealmSystem {
		return fmt.Errorf("%w: cannot delete the system realm", core.ErrInvalidSlug)
	}
	if _, err := s.Get(ctx, slug); err != nil {
		return err
	}
	if err := s.repo.DeleteRealm(ctx, slug); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Delete("realm:" + slug)
	}
	logger.From(ctx).Info("realm deleted", logger.Realm(slug))
	return nil
}

func (s *Service) cachePut(r *core.Realm) {
	if s.cache == nil {
		return
	}
	if b, err := json.Marshal(r); err == nil {
		s.cache.Set("realm:"+r.Slug, b, cacheTTL)
	}
}
