package kerberos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisgate/aegis/internal/security"
)

func TestCreateRequiresRealmSettings(t *testing.T) {
	p := &plugin{}

	_, err := p.Create(security.SchemeBlock{Name: "kerberos"})
	assert.Error(t, err)

	_, err = p.Create(security.SchemeBlock{
		Name:       "kerberos",
		Properties: map[string]any{"realm": "EXAMPLE.ORG"},
	})
	assert.Error(t, err)

	a, err := p.Create(security.SchemeBlock{
		Name: "kerberos",
		Properties: map[string]any{
			"realm": "EXAMPLE.ORG",
			"kdc":   "kdc.example.org:88",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Basic", a.Challenge())
}

func TestEditSetProperty(t *testing.T) {
	p := &plugin{}

	op := &security.CommandOperation{
		Name:  "set-property",
		Value: map[string]any{"kdc": "other.example.org:88", "bogus": 1},
	}
	updated, err := p.EditAuthentication(security.SchemeBlock{Name: "kerberos"}, []*security.CommandOperation{op})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "other.example.org:88", updated.StringProperty("kdc"))
	assert.Equal(t, []string{"Unknown property bogus"}, op.Errors())

	op = &security.CommandOperation{Name: "delete-user", Value: "x"}
	_, err = p.EditAuthentication(security.SchemeBlock{Name: "kerberos"}, []*security.CommandOperation{op})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unsupported command: delete-user")
}
