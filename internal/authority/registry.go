package authority

import (
	"fmt"
	"sort"

	"github.com/dropDatabas3/idbroker/internal/core"
)

// Registry es el catálogo proceso-wide authorityId -> Authority, por familia.
// Se arma una sola vez en el wiring del proceso y es inmutable después: no
// hay plugins dinámicos en runtime, así que todas las lecturas son seguras
// sin locks.
type Registry struct {
	identity  map[string]Authority
	attribute map[string]Authority
}

// NewRegistry cataloga las authorities dadas por su ID() y Type(). Dos
// authorities con el mismo id en la misma familia es un error de wiring y
// panickea: nunca es recuperable en runtime.
func NewRegistry(authorities ...Authority) *Registry {
	r := &Registry{
		identity:  make(map[string]Authority),
		attribute: make(map[string]Authority),
	}
	for _, a := range authorities {
		var m map[string]Authority
		switch a.Type() {
		case core.TypeIdentity:
			m = r.identity
		case core.TypeAttribute:
			m = r.attribute
		default:
			panic(fmt.Sprintf("authority %q declares unknown family %q", a.ID(), a.Type()))
		}
		if _, dup := m[a.ID()]; dup {
			panic(fmt.Sprintf("duplicate %s authority %q", a.Type(), a.ID()))
		}
		m[a.ID()] = a
	}
	return r
}

// IdentityAuthorities retorna las authorities de identidad, orden estable.
func (r *Registry) IdentityAuthorities() []Authority { return sorted(r.identity) }

// AttributeAuthorities retorna las authorities de atributos, orden estable.
func (r *Registry) AttributeAuthorities() []Authority { return sorted(r.attribute) }

// IdentityAuthority busca por id. Falla con core.ErrNoSuchAuthority.
func (r *Registry) IdentityAuthority(id string) (Authority, error) {
	if a, ok := r.identity[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: identity authority %q", core.ErrNoSuchAuthority, id)
}

// AttributeAuthority busca por id. Falla con core.ErrNoSuchAuthority.
func (r *Registry) AttributeAuthority(id string) (Authority, error) {
	if a, ok := r.attribute[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: attribute authority %q", core.ErrNoSuchAuthority, id)
}

// Authority resuelve por (familia, id). Familia desconocida también es
// ErrNoSuchAuthority: indica un type inválido en el registro persistido.
func (r *Registry) Authority(family, id string) (Authority, error) {
	switch family {
	case core.TypeIdentity:
		return r.IdentityAuthority(id)
	case core.TypeAttribute:
		return r.AttributeAuthority(id)
	default:
		return nil, fmt.Errorf("%w: unknown family %q", core.ErrNoSuchAuthority, family)
	}
}

func sorted(m map[string]Authority) []Authority {
	out := make([]Authority, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
