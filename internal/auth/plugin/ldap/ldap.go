// Package ldap provides the "ldap" authentication scheme: Basic credentials
// verified by binding against a directory server.
package ldap

import (
	"context"
	"fmt"
	"net/http"

	ldaplib "github.com/go-ldap/ldap/v3"

	"github.com/aegisgate/aegis/internal/auth"
	"github.com/aegisgate/aegis/internal/security"
)

func init() {
	auth.RegisterPlugin(&plugin{})
}

// Search limits to prevent resource exhaustion on misconfigured filters.
const (
	searchTimeLimit = 30 // seconds
)

// Recognized set-property keys.
var properties = map[string]bool{
	"url":          true,
	"baseDn":       true,
	"userFilter":   true,
	"bindDn":       true,
	"bindPassword": true,
	"blockUnknown": true,
}

// plugin implements the auth.Plugin interface for the ldap scheme.
type plugin struct{}

func (p *plugin) Scheme() string {
	return "ldap"
}

func (p *plugin) Description() string {
	return "Basic authentication against an LDAP directory"
}

// Create builds an authenticator from the scheme block's directory settings.
func (p *plugin) Create(block security.SchemeBlock) (auth.Authenticator, error) {
	cfg := config{
		URL:          block.StringProperty("url"),
		BaseDN:       block.StringProperty("baseDn"),
		UserFilter:   block.StringProperty("userFilter"),
		BindDN:       block.StringProperty("bindDn"),
		BindPassword: block.StringProperty("bindPassword"),
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("ldap scheme: url property is required")
	}
	if cfg.BaseDN == "" {
		return nil, fmt.Errorf("ldap scheme: baseDn property is required")
	}
	if cfg.UserFilter == "" {
		cfg.UserFilter = "(uid=%s)"
	}
	return &Authenticator{config: cfg}, nil
}

// EditAuthentication recognizes set-property over the directory settings.
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

type config struct {
	URL          string
	BaseDN       string
	UserFilter   string
	BindDN       string
	BindPassword string
}

// Authenticator verifies Basic credentials by binding as the resolved user.
type Authenticator struct {
	config config
}

func (a *Authenticator) Scheme() string {
	return "ldap"
}

func (a *Authenticator) Challenge() string {
	return "Basic"
}

// Authenticate resolves the user's DN by filter search and binds with the
// presented password.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*auth.Principal, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, auth.ErrDeclined
	}
	if password == "" {
		return nil, auth.NewSchemeError("ldap", "authenticate", auth.ErrInvalidCredentials)
	}

	conn, err := ldaplib.DialURL(a.config.URL)
	if err != nil {
		return nil, auth.NewSchemeError("ldap", "dial", err)
	}
	defer conn.Close()

	if a.config.BindDN != "" {
		if err := conn.Bind(a.config.BindDN, a.config.BindPassword); err != nil {
			return nil, auth.NewSchemeError("ldap", "bind", err)
		}
	}

	filter := fmt.Sprintf(a.config.UserFilter, ldaplib.EscapeFilter(username))
	searchReq := ldaplib.NewSearchRequest(
		a.config.BaseDN,
		ldaplib.ScopeWholeSubtree,
		ldaplib.NeverDerefAliases,
		1, // only one user entry is needed
		searchTimeLimit,
		false,
		filter,
		[]string{"dn"},
		nil,
	)
	result, err := conn.Search(searchReq)
	if err != nil {
		return nil, auth.NewSchemeError("ldap", "search", err)
	}
	if len(result.Entries) == 0 {
		return nil, auth.NewSchemeError("ldap", "authenticate", auth.ErrUserNotFound)
	}

	if err := conn.Bind(result.Entries[0].DN, password); err != nil {
		return nil, auth.NewSchemeError("ldap", "authenticate", auth.ErrInvalidCredentials)
	}

	return &auth.Principal{Name: username, Scheme: "ldap"}, nil
}
