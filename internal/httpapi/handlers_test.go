package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"staffdesk.org/internal/account"
	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/employee"
	"staffdesk.org/internal/identity"
	"staffdesk.org/internal/identity/memory"
)

type testEnv struct {
	api           *API
	idp           *memory.Provider
	sysadminToken string
	adminToken    string
	userToken     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	signer, err := identity.NewSigner("test-secret-0123456789", "", time.Hour)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	idp := memory.New(signer)

	env := &testEnv{idp: idp}
	seed := func(uid, email string, role auth.Role) string {
		token, err := idp.Seed(uid, email, role)
		if err != nil {
			t.Fatalf("seed %s: %v", uid, err)
		}
		return token
	}
	env.sysadminToken = seed("sys-1", "root@example.com", auth.RoleSysadmin)
	env.adminToken = seed("admin-1", "admin@example.com", auth.RoleAdmin)
	env.userToken = seed("user-1", "user@example.com", auth.RoleUser)

	dir := account.NewDirectory(idp, account.NewInMemory())
	reg := employee.NewRegistry(employee.NewInMemory())
	env.api = New(idp, dir, reg, ReadyProbe{}, Options{
		Version:       "test",
		RateBurst:     1000,
		RatePerSecond: 1000,
		Passwords:     idp,
	})
	return env
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) (*apiClient, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	srv := httptest.NewServer(env.api.Handler())
	t.Cleanup(srv.Close)
	return &apiClient{baseURL: srv.URL, client: srv.Client(), t: t}, env
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, headers)
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, strings.TrimSpace(body.String()))
	}
}

func TestAPIEnforcesAuth(t *testing.T) {
	api, _ := newTestAPI(t)

	routes := []struct{ method, path string }{
		{http.MethodPost, "/login"},
		{http.MethodPost, "/add-admin"},
		{http.MethodPost, "/remove-admin"},
		{http.MethodPost, "/update-admin"},
		{http.MethodGet, "/admin-users"},
		{http.MethodGet, "/super-admin"},
		{http.MethodPost, "/api/employees"},
		{http.MethodGet, "/api/employees"},
		{http.MethodGet, "/api/employees/some-id"},
		{http.MethodDelete, "/delete-employee/some-id"},
	}
	for _, rt := range routes {
		resp := api.do(rt.method, rt.path, nil, nil)
		expectStatus(t, resp, http.StatusUnauthorized)
		body := decode[map[string]any](t, resp)
		if body["kind"] != auth.KindUnauthenticated {
			t.Fatalf("%s %s: unexpected kind %v", rt.method, rt.path, body["kind"])
		}
	}
}

func TestLogin(t *testing.T) {
	api, env := newTestAPI(t)

	resp := api.post("/login", nil, bearerHeader(env.adminToken))
	expectStatus(t, resp, http.StatusOK)
	out := decode[loginResponse](t, resp)
	if out.Token == "" || out.Role != auth.RoleAdmin {
		t.Fatalf("unexpected login response %+v", out)
	}

	// The issued token is itself accepted.
	resp = api.get("/api/employees", nil, bearerHeader(out.Token))
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = api.post("/login", nil, bearerHeader(env.userToken))
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}

func TestAdminLifecycle(t *testing.T) {
	api, env := newTestAPI(t)
	sys := bearerHeader(env.sysadminToken)

	resp := api.post("/add-admin", map[string]any{
		"email":     "New.Admin@example.com",
		"firstName": "New",
		"lastName":  "Admin",
	}, sys)
	expectStatus(t, resp, http.StatusOK)
	created := decode[account.Profile](t, resp)
	if created.Email != "new.admin@example.com" || created.Role != auth.RoleAdmin {
		t.Fatalf("unexpected profile %+v", created)
	}

	resp = api.get("/admin-users", nil, sys)
	expectStatus(t, resp, http.StatusOK)
	admins := decode[[]account.Profile](t, resp)
	if len(admins) != 1 || admins[0].UID != created.UID {
		t.Fatalf("unexpected admin list %+v", admins)
	}

	resp = api.post("/update-admin", map[string]any{
		"uid":       created.UID,
		"firstName": "Renamed",
		"lastName":  "Admin",
	}, sys)
	expectStatus(t, resp, http.StatusOK)
	updated := decode[account.Profile](t, resp)
	if updated.FirstName != "Renamed" || updated.Role != auth.RoleAdmin {
		t.Fatalf("unexpected update %+v", updated)
	}

	resp = api.post("/remove-admin", map[string]any{"email": "new.admin@example.com"}, sys)
	expectStatus(t, resp, http.StatusOK)
	removed := decode[map[string]any](t, resp)
	if removed["uid"] != created.UID || removed["role"] != "user" {
		t.Fatalf("unexpected remove response %+v", removed)
	}

	resp = api.get("/admin-users", nil, sys)
	expectStatus(t, resp, http.StatusOK)
	if admins := decode[[]account.Profile](t, resp); len(admins) != 0 {
		t.Fatalf("expected empty admin list, got %+v", admins)
	}
}

func TestAdminRoutesRequireSysadmin(t *testing.T) {
	api, env := newTestAPI(t)

	for _, token := range []string{env.adminToken, env.userToken} {
		resp := api.post("/add-admin", map[string]any{
			"email":     "x@example.com",
			"firstName": "X",
			"lastName":  "Y",
		}, bearerHeader(token))
		expectStatus(t, resp, http.StatusForbidden)
		resp.Body.Close()

		resp = api.get("/admin-users", nil, bearerHeader(token))
		expectStatus(t, resp, http.StatusForbidden)
		resp.Body.Close()
	}
}

func TestAdminErrors(t *testing.T) {
	api, env := newTestAPI(t)
	sys := bearerHeader(env.sysadminToken)

	resp := api.post("/update-admin", map[string]any{
		"uid":       "missing",
		"firstName": "A",
		"lastName":  "B",
	}, sys)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = api.post("/add-admin", map[string]any{"email": "not-an-email", "firstName": "A", "lastName": "B"}, sys)
	expectStatus(t, resp, http.StatusBadRequest)
	body := decode[map[string]any](t, resp)
	if body["kind"] != auth.KindInvalidRequest {
		t.Fatalf("unexpected kind %v", body["kind"])
	}

	resp = api.post("/add-admin", map[string]any{"email": "a@example.com", "unknown": true}, sys)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = api.post("/remove-admin", map[string]any{}, sys)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = api.post("/remove-admin", map[string]any{"uid": "sys-1"}, sys)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestSuperAdminFallsBackToCaller(t *testing.T) {
	api, env := newTestAPI(t)

	resp := api.get("/super-admin", nil, bearerHeader(env.sysadminToken))
	expectStatus(t, resp, http.StatusOK)
	info := decode[account.SuperAdmin](t, resp)
	if info.UID != "sys-1" || info.Email != "root@example.com" {
		t.Fatalf("unexpected super admin %+v", info)
	}
}

func TestEmployeeLifecycle(t *testing.T) {
	api, env := newTestAPI(t)
	admin := bearerHeader(env.adminToken)
	sys := bearerHeader(env.sysadminToken)

	resp := api.get("/api/employees", nil, admin)
	expectStatus(t, resp, http.StatusOK)
	if list := decode[[]employee.Record](t, resp); list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", list)
	}

	resp = api.post("/api/employees", map[string]any{
		"firstName": "Ada",
		"lastName":  "Lovelace",
		"email":     "ada@example.com",
		"age":       36,
		"role":      "engineer",
	}, admin)
	expectStatus(t, resp, http.StatusCreated)
	if loc := resp.Header.Get("Location"); !strings.HasPrefix(loc, "/api/employees/") {
		t.Fatalf("unexpected Location %q", loc)
	}
	rec := decode[employee.Record](t, resp)
	if rec.ID == "" || rec.Name != "Ada Lovelace" || rec.CreatedBy != "admin-1" {
		t.Fatalf("unexpected record %+v", rec)
	}

	resp = api.get("/api/employees/"+rec.ID, nil, admin)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[employee.Record](t, resp); got.ID != rec.ID {
		t.Fatalf("unexpected get %+v", got)
	}

	resp = api.get("/api/employees", url.Values{"addedBy": {"someone-else"}}, admin)
	expectStatus(t, resp, http.StatusOK)
	if list := decode[[]employee.Record](t, resp); len(list) != 0 {
		t.Fatalf("expected filtered list to be empty, got %+v", list)
	}

	resp = api.do(http.MethodDelete, "/delete-employee/"+rec.ID, nil, admin)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = api.do(http.MethodDelete, "/delete-employee/"+rec.ID, nil, sys)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = api.do(http.MethodDelete, "/delete-employee/"+rec.ID, nil, sys)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = api.get("/api/employees/"+rec.ID, nil, admin)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestEmployeeRoutesRejectUsers(t *testing.T) {
	api, env := newTestAPI(t)
	user := bearerHeader(env.userToken)

	resp := api.post("/api/employees", map[string]any{"name": "Bob", "role": "ops"}, user)
	expectStatus(t, resp, http.StatusForbidden)
	body := decode[map[string]any](t, resp)
	if body["kind"] != auth.KindForbidden {
		t.Fatalf("unexpected kind %v", body["kind"])
	}

	resp = api.get("/api/employees", nil, user)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}

func TestEmployeeValidation(t *testing.T) {
	api, env := newTestAPI(t)
	admin := bearerHeader(env.adminToken)

	cases := []map[string]any{
		{"name": "No Role"},
		{"role": "ops"},
		{"name": "Bad Age", "role": "ops", "age": -1},
		{"name": "Bad Mail", "role": "ops", "email": "nope"},
	}
	for _, body := range cases {
		resp := api.post("/api/employees", body, admin)
		expectStatus(t, resp, http.StatusBadRequest)
		out := decode[map[string]any](t, resp)
		if out["kind"] != auth.KindInvalidRequest {
			t.Fatalf("%v: unexpected kind %v", body, out["kind"])
		}
	}
}

func TestHealthAndReadiness(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.get("/healthz", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	health := decode[map[string]any](t, resp)
	if health["status"] != "ok" || health["version"] != "test" {
		t.Fatalf("unexpected health %+v", health)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header")
	}

	resp = api.get("/readyz", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = api.get("/no-such-route", nil, nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}
