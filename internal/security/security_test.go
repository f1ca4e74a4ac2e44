package security

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemeBlockFlattensProperties(t *testing.T) {
	block := SchemeBlock{
		Name:        "basic",
		Credentials: map[string]string{"harry": "hash"},
		Properties:  map[string]any{"blockUnknown": true, "realm": "aegis"},
	}

	data, err := json.Marshal(block)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "basic", raw["name"])
	assert.Equal(t, true, raw["blockUnknown"])
	assert.Equal(t, "aegis", raw["realm"])
	assert.NotContains(t, raw, "properties")

	var parsed SchemeBlock
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, block.Name, parsed.Name)
	assert.Equal(t, block.Credentials, parsed.Credentials)
	assert.Equal(t, true, parsed.BoolProperty("blockUnknown", false))
	assert.Equal(t, "aegis", parsed.StringProperty("realm"))
}

func TestSchemeBlockRequiresName(t *testing.T) {
	var block SchemeBlock
	err := json.Unmarshal([]byte(`{"blockUnknown": true}`), &block)
	require.Error(t, err)
}

func TestSchemeBlockUserRolesAcceptStringOrList(t *testing.T) {
	var block SchemeBlock
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": "basic",
		"user-role": {"harry": "admin", "ron": ["dev", "ops"]}
	}`), &block))
	assert.Equal(t, []string{"admin"}, block.UserRoles["harry"])
	assert.Equal(t, []string{"dev", "ops"}, block.UserRoles["ron"])
}

func TestSetSchemeBlockPreservesOrder(t *testing.T) {
	cfg := SecurityConfig{}
	cfg.SetSchemeBlock(SectionAuthentication, SchemeBlock{Name: "basic"})
	cfg.SetSchemeBlock(SectionAuthentication, SchemeBlock{Name: "mock"})
	cfg.SetSchemeBlock(SectionAuthentication, SchemeBlock{
		Name:       "basic",
		Properties: map[string]any{"realm": "x"},
	})

	assert.Equal(t, []string{"basic", "mock"}, cfg.SchemeNames(SectionAuthentication))
	block, ok := cfg.SchemeBlock(SectionAuthentication, "basic")
	require.True(t, ok)
	assert.Equal(t, "x", block.StringProperty("realm"))
}

func TestLookupPathExpressions(t *testing.T) {
	cfg := sampleConfig()
	op := &CommandOperation{Name: "set-permission", Value: map[string]any{
		"name": "security-edit", "role": "admin", "collection": nil, "path": "/admin/*",
	}}
	perms, err := SetPermission(nil, op)
	require.NoError(t, err)
	cfg.Authorization.Permissions = perms

	tests := []struct {
		path string
		want any
		ok   bool
	}{
		{"authentication/schemes[0]/name", "basic", true},
		{"authentication/schemes[0]/credentials/harry", "hash", true},
		{"authorization/permissions[0]/role", "admin", true},
		{"authorization/permissions[0]/index", float64(1), true},
		{"authentication/schemes[9]/name", nil, false},
		{"authentication/nope", nil, false},
		{"authentication/schemes[x]", nil, false},
	}
	for _, tt := range tests {
		got, ok := cfg.Lookup(tt.path)
		assert.Equal(t, tt.ok, ok, "path %s", tt.path)
		if tt.ok {
			assert.Equal(t, tt.want, got, "path %s", tt.path)
		}
	}

	// Empty path yields the whole document.
	doc, ok := cfg.Lookup("")
	require.True(t, ok)
	m, ok := doc.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, m, "authentication")
	assert.Contains(t, m, "authorization")
}

func TestToStringList(t *testing.T) {
	got, err := ToStringList("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)

	got, err = ToStringList([]any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	_, err = ToStringList([]any{"a", 2})
	assert.Error(t, err)
	_, err = ToStringList(7)
	assert.Error(t, err)
}
