// Package kerberos provides the "kerberos" authentication scheme: Basic
// credentials verified by logging in against a KDC.
package kerberos

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	krbclient "github.com/jcmturner/gokrb5/v8/client"
	krbconfig "github.com/jcmturner/gokrb5/v8/config"

	"github.com/aegisgate/aegis/internal/auth"
	"github.com/aegisgate/aegis/internal/security"
)

func init() {
	auth.RegisterPlugin(&plugin{})
}

// Recognized set-property keys.
var properties = map[string]bool{
	"realm":        true,
	"kdc":          true,
	"blockUnknown": true,
}

// plugin implements the auth.Plugin interface for the kerberos scheme.
type plugin struct{}

func (p *plugin) Scheme() string {
	return "kerberos"
}

func (p *plugin) Description() string {
	return "Basic authentication verified by Kerberos KDC login"
}

// Create builds an authenticator from the scheme block's realm settings.
func (p *plugin) Create(block security.SchemeBlock) (auth.Authenticator, error) {
	realm := block.StringProperty("realm")
	kdc := block.StringProperty("kdc")
	if realm == "" {
		return nil, fmt.Errorf("kerberos scheme: realm property is required")
	}
	if kdc == "" {
		return nil, fmt.Errorf("kerberos scheme: kdc property is required")
	}

	cfgStr := fmt.Sprintf(`[libdefaults]
  default_realm = %s

[realms]
  %s = {
    kdc = %s
  }`, realm, realm, kdc)
	krbCfg, err := krbconfig.NewFromString(cfgStr)
	if err != nil {
		return nil, fmt.Errorf("kerberos scheme: build krb5 config: %w", err)
	}

	return &Authenticator{realm: realm, krbConfig: krbCfg}, nil
}

// EditAuthentication recognizes set-property over the realm settings.
func (p *plugin) EditAuthentication(block security.SchemeBlock, ops []*security.CommandOperation) (*security.SchemeBlock, error) {
	changed := false
	for _, op := range ops {
		if op.Name != "set-property" {
			return nil, auth.UnsupportedCommand(op.Name)
		}
		data, ok := op.DataMap()
		if !ok {
			continue
		}
		for key, value := range data {
			if !properties[key] {
				op.AddError("Unknown property " + key)
				continue
			}
			if block.Properties == nil {
				block.Properties = make(map[string]any)
			}
			block.Properties[key] = value
			changed = true
		}
	}
	if !changed {
		return nil, nil
	}
	return &block, nil
}

// Authenticator verifies Basic credentials by performing an AS exchange with
// the realm's KDC.
type Authenticator struct {
	realm     string
	krbConfig *krbconfig.Config
}

func (a *Authenticator) Scheme() string {
	return "kerberos"
}

func (a *Authenticator) Challenge() string {
	return "Basic"
}

// Authenticate logs the presented principal in against the KDC. A principal
// of the form user@REALM overrides the configured realm.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*auth.Principal, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, auth.ErrDeclined
	}

	realm := a.realm
	if idx := strings.IndexByte(username, '@'); idx >= 0 {
		realm = username[idx+1:]
		username = username[:idx]
	}

	cl := krbclient.NewWithPassword(username, realm, password, a.krbConfig)
	if err := cl.Login(); err != nil {
		return nil, auth.NewSchemeError("kerberos", "login", err)
	}
	defer cl.Destroy()

	return &auth.Principal{Name: strings.ToLower(username), Scheme: "kerberos"}, nil
}
