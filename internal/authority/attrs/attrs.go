// Package attrs implementa las authorities de atributos: "attrs-internal"
// (lee los atributos guardados en la cuenta interna del subject) y
// "attrs-webhook" (resuelve atributos contra un endpoint HTTP externo).
package attrs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dropDatabas3/idbroker/internal/authority"
	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/schema"
	"github.com/dropDatabas3/idbroker/internal/store"
)

const (
	InternalAuthorityID = "attrs-internal"
	WebhookAuthorityID  = "attrs-webhook"
)

// ===== attrs-internal =====

const internalSchema = `{
	"type": "object",
	"properties": {
		"attributeSets": {"type": "array", "items": {"type": "string"}}
	},
	"additionalProperties": false
}`

type InternalAuthority struct {
	*authority.Base
}

func NewInternal(repo store.AccountRepository, validator *schema.Validator) *InternalAuthority {
	a := &InternalAuthority{}
	a.Base = authority.NewBase(InternalAuthorityID, core.TypeAttribute, internalSchema, validator,
		func(ctx context.Context, cp *core.ConfigurableProvider) (authority.LiveProvider, error) {
			return &internalProvider{key: cp.Key(), repo: repo}, nil
		})
	return a
}

type internalProvider struct {
	key  core.ProviderKey
	repo store.AccountRepository
}

var _ authority.AttributeProvider = (*internalProvider)(nil)

func (p *internalProvider) Key() core.ProviderKey { return p.key }
func (p *internalProvider) AuthorityID() string   { return InternalAuthorityID }
func (p *internalProvider) Type() string          { return core.TypeAttribute }

func (p *internalProvider) Attributes(ctx context.Context, subject string) (map[string]any, error) {
	acc, err := p.repo.FindAccountBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(acc.Attributes))
	for k, v := range acc.Attributes {
		out[k] = v
	}
	return out, nil
}

// ===== attrs-webhook =====

const webhookSchema = `{
	"type": "object",
	"properties": {
		"url":            {"type": "string", "minLength": 1},
		"authToken":      {"type": "string"},
		"timeoutSeconds": {"type": "integer", "minimum": 1, "maximum": 60}
	},
	"required": ["url"],
	"additionalProperties": false
}`

type WebhookAuthority struct {
	*authority.Base
}

func NewWebhook(validator *schema.Validator) *WebhookAuthority {
	a := &WebhookAuthority{}
	a.Base = authority.NewBase(WebhookAuthorityID, core.TypeAttribute, webhookSchema, validator,
		func(ctx context.Context, cp *core.ConfigurableProvider) (authority.LiveProvider, error) {
			return newWebhookProvider(cp)
		})
	return a
}

type webhookProvider struct {
	key       core.ProviderKey
	url       string
	authToken string
	client    *http.Client
}

var _ authority.AttributeProvider = (*webhookProvider)(nil)

func newWebhookProvider(cp *core.ConfigurableProvider) (*webhookProvider, error) {
	url, _ := cp.Configuration["url"].(string)
	token, _ := cp.Configuration["authToken"].(string)
	timeout := 10 * time.Second
	if v, ok := cp.Configuration["timeoutSeconds"].(int); ok {
		timeout = time.Duration(v) * time.Second
	} else if v, ok := cp.Configuration["timeoutSeconds"].(float64); ok {
		timeout = time.Duration(v) * time.Second
	}
	return &webhookProvider{
		key:       cp.Key(),
		url:       url,
		authToken: token,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

func (p *webhookProvider) Key() core.ProviderKey { return p.key }
func (p *webhookProvider) AuthorityID() string   { return WebhookAuthorityID }
func (p *webhookProvider) Type() string          { return core.TypeAttribute }

// Attributes hace POST {"subject","realm"} al endpoint y espera un objeto
// JSON plano como respuesta.
func (p *webhookProvider) Attributes(ctx context.Context, subject string) (map[string]any, error) {
	payload, err := json.Marshal(map[string]string{
		"subject": subject,
		"realm":   p.key.Realm,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attribute webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attribute webhook: status %d", resp.StatusCode)
	}

	var attrs map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&attrs); err != nil {
		return nil, fmt.Errorf("attribute webhook: decode: %w", err)
	}
	return attrs, nil
}
