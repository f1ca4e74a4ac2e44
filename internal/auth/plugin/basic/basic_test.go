package basic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aegisgate/aegis/internal/auth"
	"github.com/aegisgate/aegis/internal/security"
)

func fastHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func basicRequest(user, password string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/admin/authentication", nil)
	r.SetBasicAuth(user, password)
	return r
}

func TestAuthenticate(t *testing.T) {
	p := &plugin{}
	a, err := p.Create(security.SchemeBlock{
		Name:        "basic",
		Credentials: map[string]string{"harry": fastHash(t, "HarryIsUberCool")},
	})
	require.NoError(t, err)

	principal, err := a.Authenticate(context.Background(), basicRequest("harry", "HarryIsUberCool"))
	require.NoError(t, err)
	assert.Equal(t, "harry", principal.Name)
	assert.Equal(t, "basic", principal.Scheme)

	_, err = a.Authenticate(context.Background(), basicRequest("harry", "wrong"))
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = a.Authenticate(context.Background(), basicRequest("nobody", "pw"))
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	// No Basic credentials at all is a decline, not a failure.
	_, err = a.Authenticate(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, auth.ErrDeclined)
}

func TestEditSetUserHashesPassword(t *testing.T) {
	p := &plugin{}
	op := &security.CommandOperation{
		Name:  "set-user",
		Value: map[string]any{"harry": "HarryIsUberCool"},
	}

	updated, err := p.EditAuthentication(security.SchemeBlock{Name: "basic"}, []*security.CommandOperation{op})
	require.NoError(t, err)
	require.NotNil(t, updated)
	require.Empty(t, op.Errors())

	hash := updated.Credentials["harry"]
	require.NotEmpty(t, hash)
	assert.NotEqual(t, "HarryIsUberCool", hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("HarryIsUberCool")))
}

func TestEditDeleteUser(t *testing.T) {
	p := &plugin{}
	block := security.SchemeBlock{
		Name:        "basic",
		Credentials: map[string]string{"harry": "h", "ron": "r"},
	}

	op := &security.CommandOperation{Name: "delete-user", Value: "ron"}
	updated, err := p.EditAuthentication(block.Clone(), []*security.CommandOperation{op})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.NotContains(t, updated.Credentials, "ron")
	assert.Contains(t, updated.Credentials, "harry")

	// Deleting a missing user records an error and yields no change.
	op = &security.CommandOperation{Name: "delete-user", Value: "hermione"}
	updated, err = p.EditAuthentication(block.Clone(), []*security.CommandOperation{op})
	require.NoError(t, err)
	assert.Nil(t, updated)
	assert.Equal(t, []string{"no such user: hermione"}, op.Errors())

	// A list deletes several users at once.
	op = &security.CommandOperation{Name: "delete-user", Value: []any{"harry", "ron"}}
	updated, err = p.EditAuthentication(block.Clone(), []*security.CommandOperation{op})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Empty(t, updated.Credentials)
}

func TestEditSetProperty(t *testing.T) {
	p := &plugin{}

	op := &security.CommandOperation{
		Name:  "set-property",
		Value: map[string]any{"blockUnknown": true},
	}
	updated, err := p.EditAuthentication(security.SchemeBlock{Name: "basic"}, []*security.CommandOperation{op})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, true, updated.BoolProperty("blockUnknown", false))

	op = &security.CommandOperation{
		Name:  "set-property",
		Value: map[string]any{"bogus": 1},
	}
	updated, err = p.EditAuthentication(security.SchemeBlock{Name: "basic"}, []*security.CommandOperation{op})
	require.NoError(t, err)
	assert.Nil(t, updated)
	assert.Equal(t, []string{"Unknown property bogus"}, op.Errors())
}

func TestEditUnsupportedCommand(t *testing.T) {
	p := &plugin{}
	op := &security.CommandOperation{Name: "set-user-role", Value: map[string]any{"harry": "admin"}}
	_, err := p.EditAuthentication(security.SchemeBlock{Name: "basic"}, []*security.CommandOperation{op})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unsupported command: set-user-role")
	assert.Equal(t, 400, security.StatusOf(err))
}
