package schema

import (
	"errors"
	"testing"

	"github.com/dropDatabas3/idbroker/internal/core"
)

const testSchema = `{
	"type": "object",
	"properties": {
		"issuer":   {"type": "string", "minLength": 1},
		"clientId": {"type": "string"}
	},
	"required": ["issuer"],
	"additionalProperties": false
}`

func TestValidateOK(t *testing.T) {
	v := NewValidator()
	cfg := map[string]any{"issuer": "https://idp.example.com", "clientId": "abc"}
	if err := v.Validate(testSchema, cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateMissingRequired(t *testing.T) {
	v := NewValidator()
	err := v.Validate(testSchema, map[string]any{"clientId": "abc"})
	if err == nil {
		t.Fatal("quería error por campo requerido faltante")
	}
	if !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Fatalf("quería ErrInvalidConfiguration, vino %v", err)
	}
}

func TestValidateAdditionalProperty(t *testing.T) {
	v := NewValidator()
	err := v.Validate(testSchema, map[string]any{"issuer": "x", "extra": true})
	if !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Fatalf("quería ErrInvalidConfiguration, vino %v", err)
	}
}

func TestValidateEmptySchema(t *testing.T) {
	v := NewValidator()
	if err := v.Validate("", map[string]any{"anything": 1}); err != nil {
		t.Fatalf("schema vacío tiene que aceptar todo: %v", err)
	}
}

func TestValidateIntegerNormalization(t *testing.T) {
	v := NewValidator()
	schema := `{"type":"object","properties":{"n":{"type":"integer","minimum":1}}}`
	// los ints de Go tienen que pasar como integers JSON
	if err := v.Validate(schema, map[string]any{"n": 5}); err != nil {
		t.Fatalf("int nativo rechazado: %v", err)
	}
	if err := v.Validate(schema, map[string]any{"n": 0}); err == nil {
		t.Fatal("quería rechazo por minimum")
	}
}
