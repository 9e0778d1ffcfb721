// Package samlauth implementa la authority "saml": login federado SAML 2.0.
// El material criptográfico del IdP (cert, key opcional) se parsea en
// Register; material inválido hace fallar el registro sin dejar instancia.
package samlauth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/dropDatabas3/idbroker/internal/authority"
	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/schema"
)

const AuthorityID = "saml"

const configSchema = `{
	"type": "object",
	"properties": {
		"entityId":     {"type": "string", "minLength": 1},
		"ssoUrl":       {"type": "string", "minLength": 1},
		"certificate":  {"type": "string", "minLength": 1},
		"privateKey":   {"type": "string"},
		"audienceUri":  {"type": "string"},
		"acsUrl":       {"type": "string"},
		"nameIdFormat": {"type": "string"},
		"signRequests": {"type": "boolean"}
	},
	"required": ["entityId", "ssoUrl", "certificate"],
	"additionalProperties": false
}`

type Authority struct {
	*authority.Base
}

func New(validator *schema.Validator) *Authority {
	a := &Authority{}
	a.Base = authority.NewBase(AuthorityID, core.TypeIdentity, configSchema, validator, newProvider)
	return a
}

type Provider struct {
	key core.ProviderKey
	sp  *saml2.SAMLServiceProvider
}

var _ authority.IdentityProvider = (*Provider)(nil)

func newProvider(_ context.Context, cp *core.ConfigurableProvider) (authority.LiveProvider, error) {
	entityID, _ := cp.Configuration["entityId"].(string)
	ssoURL, _ := cp.Configuration["ssoUrl"].(string)
	certPEM, _ := cp.Configuration["certificate"].(string)

	certBlock, _ := pem.Decode([]byte(certPEM))
	if certBlock == nil {
		return nil, fmt.Errorf("idp certificate: invalid PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("idp certificate: %w", err)
	}
	certStore := dsig.MemoryX509CertificateStore{Roots: []*x509.Certificate{cert}}

	var keyStore dsig.X509KeyStore
	if keyPEM, _ := cp.Configuration["privateKey"].(string); keyPEM != "" {
		keyBlock, _ := pem.Decode([]byte(keyPEM))
		if keyBlock == nil {
			return nil, fmt.Errorf("sp private key: invalid PEM")
		}
		privateKey, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
		if err != nil {
			pkcs8Key, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
			if err != nil {
				return nil, fmt.Errorf("sp private key: %w", err)
			}
			var ok bool
			privateKey, ok = pkcs8Key.(*rsa.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("sp private key: not RSA")
			}
		}
		keyStore = &dsig.TLSCertKeyStore{
			PrivateKey:  privateKey,
			Certificate: [][]byte{certBlock.Bytes},
		}
	}

	audience, _ := cp.Configuration["audienceUri"].(string)
	if audience == "" {
		audience = entityID
	}
	acsURL, _ := cp.Configuration["acsUrl"].(string)
	signRequests, _ := cp.Configuration["signRequests"].(bool)

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      ssoURL,
		IdentityProviderIssuer:      entityID,
		ServiceProviderIssuer:       audience,
		AssertionConsumerServiceURL: acsURL,
		SignAuthnRequests:           signRequests,
		AudienceURI:                 audience,
		IDPCertificateStore:         &certStore,
		SPKeyStore:                  keyStore,
	}
	if v, ok := cp.Configuration["nameIdFormat"].(string); ok && v != "" {
		sp.NameIdFormat = v
	}

	return &Provider{key: cp.Key(), sp: sp}, nil
}

func (p *Provider) Key() core.ProviderKey { return p.key }
func (p *Provider) AuthorityID() string   { return AuthorityID }
func (p *Provider) Type() string          { return core.TypeIdentity }

// AuthURL arma la URL de redirect al IdP con el relay state dado.
func (p *Provider) AuthURL(relayState string) (string, error) {
	return p.sp.BuildAuthURL(relayState)
}

// Authenticate valida una SAMLResponse ("samlResponse", base64 como llega
// del POST binding) y mapea la assertion a una identidad local.
func (p *Provider) Authenticate(_ context.Context, credentials map[string]string) (*authority.Identity, error) {
	raw := credentials["samlResponse"]
	if raw == "" {
		return nil, fmt.Errorf("missing samlResponse")
	}

	assertionInfo, err := p.sp.RetrieveAssertionInfo(raw)
	if err != nil {
		return nil, fmt.Errorf("assertion validation: %w", err)
	}
	if assertionInfo.WarningInfo.InvalidTime {
		return nil, fmt.Errorf("assertion outside validity window")
	}
	if assertionInfo.WarningInfo.NotInAudience {
		return nil, fmt.Errorf("assertion audience mismatch")
	}

	attrs := make(map[string]any, len(assertionInfo.Values))
	for name, attr := range assertionInfo.Values {
		if len(attr.Values) == 1 {
			attrs[name] = attr.Values[0].Value
			continue
		}
		vals := make([]string, 0, len(attr.Values))
		for _, v := range attr.Values {
			vals = append(vals, v.Value)
		}
		attrs[name] = vals
	}

	email, _ := attrs["email"].(string)
	username, _ := attrs["username"].(string)
	if username == "" {
		username = assertionInfo.NameID
	}

	return &authority.Identity{
		Subject:    assertionInfo.NameID,
		Realm:      p.key.Realm,
		Provider:   p.key.Provider,
		Username:   username,
		Email:      email,
		Attributes: attrs,
	}, nil
}
