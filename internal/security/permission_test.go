package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func permPayload(name string) map[string]any {
	return map[string]any{
		"name":       name,
		"role":       "admin",
		"collection": nil,
		"path":       "/" + name,
	}
}

func seedPermissions(t *testing.T, n int) []Permission {
	t.Helper()
	var perms []Permission
	for i := 0; i < n; i++ {
		op := &CommandOperation{Name: "set-permission", Value: permPayload(string(rune('a' + i)))}
		var err error
		perms, err = SetPermission(perms, op)
		require.NoError(t, err)
	}
	return perms
}

func TestSetPermissionAppendsWithNextIndex(t *testing.T) {
	perms := seedPermissions(t, 5)

	op := &CommandOperation{Name: "set-permission", Value: permPayload("k5")}
	perms, err := SetPermission(perms, op)
	require.NoError(t, err)

	require.Len(t, perms, 6)
	// The sixth permission is visible at offset 5 and carries index 6.
	assert.Equal(t, 6, perms[5].Index)
	assert.Equal(t, "k5", perms[5].Name)
	// Explicit null collection means all collections.
	assert.Nil(t, perms[5].Collection)
}

func TestSetPermissionRejectsIndex(t *testing.T) {
	payload := permPayload("x")
	payload["index"] = 2
	op := &CommandOperation{Name: "set-permission", Value: payload}
	_, err := SetPermission(nil, op)
	require.Error(t, err)
	assert.Equal(t, 400, StatusOf(err))
}

func TestSetPermissionRequiresFields(t *testing.T) {
	op := &CommandOperation{Name: "set-permission", Value: map[string]any{"role": "admin"}}
	_, err := SetPermission(nil, op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission requires a name")
	assert.Contains(t, err.Error(), "permission requires a path")
}

func TestUpdatePermissionAcceptsStringIndex(t *testing.T) {
	perms := seedPermissions(t, 6)

	payload := permPayload("replaced")
	payload["index"] = "6"
	payload["role"] = []any{"admin", "dev"}
	op := &CommandOperation{Name: "update-permission", Value: payload}

	updated, err := UpdatePermission(perms, op)
	require.NoError(t, err)
	require.Len(t, updated, 6)
	assert.Equal(t, "replaced", updated[5].Name)
	assert.Equal(t, 6, updated[5].Index)
	assert.Equal(t, RoleList{"admin", "dev"}, updated[5].Role)

	// The input list is left untouched.
	assert.NotEqual(t, "replaced", perms[5].Name)
}

func TestUpdatePermissionOutOfRange(t *testing.T) {
	perms := seedPermissions(t, 2)
	payload := permPayload("x")
	payload["index"] = 9
	op := &CommandOperation{Name: "update-permission", Value: payload}
	_, err := UpdatePermission(perms, op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no permission at index 9")
}

func TestDeletePermissionRenumbers(t *testing.T) {
	perms := seedPermissions(t, 6)

	op := &CommandOperation{Name: "delete-permission", Value: float64(3)}
	updated, err := DeletePermission(perms, op)
	require.NoError(t, err)

	require.Len(t, updated, 5)
	for i, p := range updated {
		assert.Equal(t, i+1, p.Index)
	}
	// The entry formerly at index 4 moved down to index 3.
	assert.Equal(t, perms[3].Name, updated[2].Name)
}

func TestDeletePermissionStringIndex(t *testing.T) {
	perms := seedPermissions(t, 1)
	op := &CommandOperation{Name: "delete-permission", Value: "1"}
	updated, err := DeletePermission(perms, op)
	require.NoError(t, err)
	assert.Empty(t, updated)
}

func TestDeletePermissionBadIndex(t *testing.T) {
	perms := seedPermissions(t, 1)
	for _, v := range []any{"nope", float64(2.5), float64(0), float64(9), nil} {
		op := &CommandOperation{Name: "delete-permission", Value: v}
		_, err := DeletePermission(perms, op)
		assert.Error(t, err, "value %v", v)
	}
}

func TestRoleListRoundTrip(t *testing.T) {
	single := RoleList{"admin"}
	data, err := single.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"admin"`, string(data))

	var parsed RoleList
	require.NoError(t, parsed.UnmarshalJSON([]byte(`"admin"`)))
	assert.Equal(t, single, parsed)

	require.NoError(t, parsed.UnmarshalJSON([]byte(`["a","b"]`)))
	assert.Equal(t, RoleList{"a", "b"}, parsed)

	assert.Error(t, parsed.UnmarshalJSON([]byte(`{"x":1}`)))
}
