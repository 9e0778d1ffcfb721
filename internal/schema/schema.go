// Package schema valida los configuration maps de providers contra el
// JSON Schema declarado por cada authority. Una validación fallida es rechazo
// duro (core.ErrInvalidConfiguration), nunca warning.
package schema

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/dropDatabas3/idbroker/internal/core"
)

// Validator compila y cachea schemas por su texto JSON. Los schemas de las
// authorities son estáticos, así que el cache nunca se invalida.
type Validator struct {
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

func NewValidator() *Validator {
	return &Validator{compiled: make(map[string]*jsonschema.Schema)}
}

// Validate valida cfg contra schemaJSON. Retorna core.ErrInvalidConfiguration
// (wrapped con el detalle) si el payload no valida o el schema no compila.
func (v *Validator) Validate(schemaJSON string, cfg map[string]any) error {
	if strings.TrimSpace(schemaJSON) == "" {
		// authority sin schema: cualquier configuración es válida
		return nil
	}
	sch, err := v.compile(schemaJSON)
	if err != nil {
		return fmt.Errorf("%w: schema compile: %v", core.ErrInvalidConfiguration, err)
	}

	// jsonschema valida sobre any decodificado de JSON; normalizamos el map
	doc := make(map[string]any, len(cfg))
	for k, val := range cfg {
		doc[k] = normalize(val)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidConfiguration, err)
	}
	return nil
}

func (v *Validator) compile(schemaJSON string) (*jsonschema.Schema, error) {
	v.mu.RLock()
	sch, ok := v.compiled[schemaJSON]
	v.mu.RUnlock()
	if ok {
		return sch, nil
	}

	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)
	if err := compiler.AddResource("schema.json", parsed); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	sch, err = compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	v.mu.Lock()
	v.compiled[schemaJSON] = sch
	v.mu.Unlock()
	return sch, nil
}

// normalize convierte tipos Go comunes a los que produce encoding/json,
// para que los schemas numéricos validen igual venga el valor de yaml o API.
func normalize(val any) any {
	switch t := val.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = normalize(v)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = normalize(v)
		}
		return out
	default:
		return val
	}
}
