package authority

import (
	"hash/fnv"
	"sync"

	"github.com/dropDatabas3/idbroker/internal/core"
)

const shardCount = 16

// instanceMap es el mapa (realm, providerId) -> instancia viva que cada
// authority mantiene. Es la única estructura compartida mutada en
// concurrencia del core: lecturas concurrentes seguras (lookup en request
// handling) y escrituras serializadas por clave.
//
// El register es en dos pasos para no sostener el lock del shard durante la
// construcción (que puede bloquear en red): reserve marca la clave en vuelo,
// commit publica la instancia, release la libera si la construcción falló.
// Una clave reservada no es visible: IsRegistered/Get solo ven instancias
// publicadas, así nunca desacuerdan entre sí.
type instanceMap struct {
	shards [shardCount]instanceShard
}

// byID es un índice secundario providerId -> claves publicadas. El id es
// único solo dentro de (authority, realm): el mismo id en dos realms son dos
// claves vivas bajo el mismo id, por eso el índice guarda la lista completa
// y no una sola clave.
type instanceShard struct {
	mu      sync.RWMutex
	entries map[core.ProviderKey]*instanceEntry
	byID    map[string][]core.ProviderKey
}

type instanceEntry struct {
	inst  LiveProvider
	ready bool
}

func newInstanceMap() *instanceMap {
	m := &instanceMap{}
	for i := range m.shards {
		m.shards[i].entries = make(map[core.ProviderKey]*instanceEntry)
		m.shards[i].byID = make(map[string][]core.ProviderKey)
	}
	return m
}

// shardFor shardea por providerId: la clave completa y el índice byID de un
// provider caen siempre en el mismo shard.
func (m *instanceMap) shardFor(providerID string) *instanceShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(providerID))
	return &m.shards[h.Sum32()%shardCount]
}

// reserve marca key como en vuelo. Retorna false si ya hay una instancia
// (publicada o en vuelo) para esa clave: de dos register concurrentes sobre
// la misma clave exactamente uno obtiene la reserva.
func (m *instanceMap) reserve(key core.ProviderKey) bool {
	s := m.shardFor(key.Provider)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; exists {
		return false
	}
	s.entries[key] = &instanceEntry{}
	return true
}

// commit publica la instancia bajo una clave previamente reservada.
func (m *instanceMap) commit(key core.ProviderKey, inst LiveProvider) {
	s := m.shardFor(key.Provider)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &instanceEntry{inst: inst, ready: true}
	keys := s.byID[key.Provider]
	for _, k := range keys {
		if k == key {
			return
		}
	}
	s.byID[key.Provider] = append(keys, key)
}

// release libera una reserva cuya construcción falló.
func (m *instanceMap) release(key core.ProviderKey) {
	s := m.shardFor(key.Provider)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && !e.ready {
		delete(s.entries, key)
	}
}

// remove quita y retorna la instancia publicada; nil si no estaba. Una
// reserva en vuelo no se toca: el register que la posee decidirá su destino.
func (m *instanceMap) remove(key core.ProviderKey) LiveProvider {
	s := m.shardFor(key.Provider)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !e.ready {
		return nil
	}
	delete(s.entries, key)
	// del índice sale solo la clave removida; otro realm con el mismo id
	// sigue indexado
	keys := s.byID[key.Provider]
	for i, k := range keys {
		if k == key {
			keys = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(keys) == 0 {
		delete(s.byID, key.Provider)
	} else {
		s.byID[key.Provider] = keys
	}
	return e.inst
}

// get retorna la instancia publicada para key, o nil.
func (m *instanceMap) get(key core.ProviderKey) LiveProvider {
	s := m.shardFor(key.Provider)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[key]; ok && e.ready {
		return e.inst
	}
	return nil
}

// getByID retorna la instancia publicada por providerId, o nil. Si el mismo
// id vive en más de un realm elige determinísticamente la de realm menor
// (orden lexicográfico).
func (m *instanceMap) getByID(providerID string) LiveProvider {
	s := m.shardFor(providerID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *instanceEntry
	var bestRealm string
	for _, key := range s.byID[providerID] {
		e, ok := s.entries[key]
		if !ok || !e.ready {
			continue
		}
		if best == nil || key.Realm < bestRealm {
			best, bestRealm = e, key.Realm
		}
	}
	if best == nil {
		return nil
	}
	return best.inst
}
