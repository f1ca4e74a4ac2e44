package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aegisgate/aegis/internal/api"
	"github.com/aegisgate/aegis/internal/metrics"
	"github.com/aegisgate/aegis/internal/security"
	"github.com/aegisgate/aegis/internal/server"

	_ "github.com/aegisgate/aegis/internal/auth/plugin/basic"
	_ "github.com/aegisgate/aegis/internal/auth/plugin/mock"
)

func seedConfig(t *testing.T) security.SecurityConfig {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("HarryIsUberCool"), bcrypt.MinCost)
	require.NoError(t, err)

	return security.SecurityConfig{
		Authentication: security.SectionConfig{
			Class: security.ClassMultiAuth,
			Schemes: []security.SchemeBlock{
				{
					Name:        "basic",
					Credentials: map[string]string{"harry": string(hash)},
					Properties:  map[string]any{"blockUnknown": true},
				},
				{Name: "mock"},
			},
		},
		Authorization: security.SectionConfig{
			Class: security.ClassMultiAuthz,
			Schemes: []security.SchemeBlock{
				{Name: "basic", UserRoles: map[string][]string{"harry": {"admin"}}},
				{Name: "mock", UserRoles: map[string][]string{"mock": {"admin"}}},
			},
			Permissions: []security.Permission{
				{Index: 1, Name: "security-edit", Role: security.RoleList{"admin"}, Path: "/admin/auth*"},
			},
		},
	}
}

type fixture struct {
	t       *testing.T
	handler http.Handler
	store   *security.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := security.NewMemoryStore(seedConfig(t))
	holder, err := server.NewHolder(store, time.Second)
	require.NoError(t, err)

	a := api.New(api.Config{
		Store:     store,
		Router:    security.NewRouter(store, holder),
		Snapshots: holder,
		Metrics:   metrics.New(),
	})
	return &fixture{t: t, handler: a.Handler(), store: store}
}

// do issues one request with the given Authorization header value.
func (f *fixture) do(method, target, authz, body string) *httptest.ResponseRecorder {
	f.t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if authz != "" {
		r.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func basicAuthz(user, password string) string {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.SetBasicAuth(user, password)
	return r.Header.Get("Authorization")
}

const harry = "Basic aGFycnk6SGFycnlJc1ViZXJDb29s" // harry:HarryIsUberCool

func (f *fixture) lookup(path string) any {
	f.t.Helper()
	w := f.do(http.MethodGet, api.AuthenticationPath+"?path="+path, harry, "")
	require.Equal(f.t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["value"]
}

func TestUnauthenticatedRejected(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, api.AuthenticationPath, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic")

	// Health and version stay open.
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/version", "", "").Code)
}

func TestMockHeaderRoutesToMockScheme(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, api.AuthenticationPath, "mock foo", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "authentication")
}

func TestUnwrappedCommandRejected(t *testing.T) {
	f := newFixture(t)

	// set-user without the scheme wrapper must fail with 400.
	w := f.do(http.MethodPost, api.AuthenticationPath, harry,
		`{"set-user": {"ron": "pw", "hermione": "pw2"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown scheme in the wrapper also fails with 400.
	w = f.do(http.MethodPost, api.AuthenticationPath, harry,
		`{"set-user": {"saml": {"ron": "pw"}}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetUserLifecycle(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, api.AuthenticationPath, harry,
		`{"set-user": {"basic": {"ron": "RonIsCoolToo"}}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The credential is visible under the basic block.
	assert.NotNil(t, f.lookup("authentication/schemes[0]/credentials/ron"))

	// The rebuilt chain authenticates ron, but without a role the
	// permission list denies.
	ron := basicAuthz("ron", "RonIsCoolToo")
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, api.AuthenticationPath, ron, "").Code)

	w = f.do(http.MethodPost, api.AuthorizationPath, harry,
		`{"set-user-role": {"basic": {"ron": "admin"}}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, api.AuthenticationPath, ron, "").Code)

	// Deleting the user invalidates the credential on the next request.
	w = f.do(http.MethodPost, api.AuthenticationPath, harry,
		`{"delete-user": {"basic": "ron"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Nil(t, f.lookup("authentication/schemes[0]/credentials/ron"))
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, api.AuthenticationPath, ron, "").Code)
}

func TestPermissionIndexing(t *testing.T) {
	f := newFixture(t)

	// Grow the list to six permissions.
	for _, name := range []string{"p2", "p3", "p4", "p5"} {
		w := f.do(http.MethodPost, api.AuthorizationPath, harry,
			`{"set-permission": {"name": "`+name+`", "role": "admin", "collection": null, "path": "/x/`+name+`"}}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w := f.do(http.MethodPost, api.AuthorizationPath, harry,
		`{"set-permission": {"name": "k5", "role": "admin", "collection": null, "path": "/x/k5"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The sixth permission sits at offset 5 with visible index 6.
	assert.Equal(t, float64(6), f.lookup("authorization/permissions[5]/index"))
	assert.Equal(t, "k5", f.lookup("authorization/permissions[5]/name"))

	// update-permission accepts the index as a string.
	w = f.do(http.MethodPost, api.AuthorizationPath, harry,
		`{"update-permission": {"index": "6", "name": "k5", "role": ["admin", "dev"], "collection": null, "path": "/x/k5"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []any{"admin", "dev"}, f.lookup("authorization/permissions[5]/role"))

	// delete-permission takes the bare index and renumbers the remainder.
	w = f.do(http.MethodPost, api.AuthorizationPath, harry,
		`{"delete-permission": 6}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Nil(t, f.lookup("authorization/permissions[5]"))
	assert.Equal(t, float64(5), f.lookup("authorization/permissions[4]/index"))
	assert.Equal(t, "p5", f.lookup("authorization/permissions[4]/name"))
}

func TestSetPropertyOnMockScheme(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, api.AuthenticationPath, harry,
		`{"set-property": {"mock": {"blockUnknown": true}}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, f.lookup("authentication/schemes[1]/blockUnknown"))

	// Unknown property keys fail the batch.
	w = f.do(http.MethodPost, api.AuthenticationPath, harry,
		`{"set-property": {"mock": {"bogus": 1}}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Unknown property bogus")
}

func TestVersionAdvancesPerEdit(t *testing.T) {
	f := newFixture(t)

	_, before, err := f.store.Read()
	require.NoError(t, err)

	w := f.do(http.MethodPost, api.AuthenticationPath, harry,
		`{"set-property": {"mock": {"blockUnknown": true}}}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Version int64 `json:"version"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, before+1, resp.Version)

	// A no-op batch leaves the version alone. Removing a role assignment
	// that does not exist changes nothing.
	w = f.do(http.MethodPost, api.AuthorizationPath, harry,
		`{"set-user-role": {"basic": {"ghost": null}}}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, before+1, resp.Version)
}
