package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/user-directory/internal/metrics"
	"github.com/sakif/user-directory/internal/model"
	"github.com/sakif/user-directory/internal/repository/sqlite"
	"github.com/sakif/user-directory/internal/service"
	"github.com/sakif/user-directory/internal/validation"
)

// testAPI is the user API over a fresh in-memory database. logs collects
// everything the handlers log.
type testAPI struct {
	router http.Handler
	logs   *bytes.Buffer
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db, err := sqlite.New(sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))

	v := validation.New()
	svc := service.NewUserService(db, v, metrics.Nop{}, logger)
	r := chi.NewRouter()
	r.Mount("/api/users", NewUserHandler(svc, v, logger).Routes())

	return &testAPI{router: r, logs: logs}
}

func (a *testAPI) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

// failureLines returns the diagnostic lines written by the error translator.
func (a *testAPI) failureLines() []map[string]any {
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(a.logs.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if json.Unmarshal([]byte(line), &entry) == nil && entry["msg"] == "request failed" {
			out = append(out, entry)
		}
	}
	return out
}

func (a *testAPI) createUser(t *testing.T, username, city string, age int) model.User {
	t.Helper()
	body := `{"username":"` + username + `","email":"` + username + `@example.com","age":` +
		jsonNumber(age) + `,"city":"` + city + `"}`
	rr := a.do(t, http.MethodPost, "/api/users", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var u model.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &u))
	return u
}

func jsonNumber(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m), rr.Body.String())
	return m
}

// =========================================================================
// CREATE
// =========================================================================

func TestHandleCreate_Success(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPost, "/api/users",
		`{"username":"johndoe","email":"johndoe@example.com","age":25,"city":"New York"}`)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	body := decode(t, rr)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "johndoe", body["username"])
	assert.Equal(t, "johndoe@example.com", body["email"])
	assert.EqualValues(t, 25, body["age"])
	assert.Equal(t, "New York", body["city"])
	assert.NotEmpty(t, body["createdAt"])
	assert.Empty(t, api.failureLines())
}

func TestHandleCreate_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "empty body",
			body: "",
			want: `Validation Error: "username" is required, "email" is required, "age" is required, "city" is required`,
		},
		{
			name: "short username",
			body: `{"username":"jo","email":"jo@example.com","age":25,"city":"NY"}`,
			want: `Validation Error: "username" length must be at least 3 characters long`,
		},
		{
			name: "negative age",
			body: `{"username":"johndoe","email":"johndoe@example.com","age":-1,"city":"NY"}`,
			want: `Validation Error: "age" must be greater than or equal to 0`,
		},
		{
			name: "unknown key",
			body: `{"username":"johndoe","email":"johndoe@example.com","age":25,"city":"NY","role":"admin"}`,
			want: `Validation Error: "role" is not allowed`,
		},
		{
			name: "type error alongside rule violations",
			body: `{"username":5,"email":"bad","age":-1,"city":"N"}`,
			want: `Validation Error: "username" must be a string, "email" must be a valid email, ` +
				`"age" must be greater than or equal to 0, "city" length must be at least 2 characters long`,
		},
		{
			name: "age beyond safe integer range",
			body: `{"username":"johndoe","email":"johndoe@example.com","age":1e20,"city":"NY"}`,
			want: `Validation Error: "age" must be a safe number`,
		},
		{
			name: "broken json",
			body: `{"username":`,
			want: `Validation Error: request body must be valid JSON`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)

			rr := api.do(t, http.MethodPost, "/api/users", tt.body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.JSONEq(t, `{"success":false,"error":`+jsonString(tt.want)+`}`, rr.Body.String())
			assert.Len(t, api.failureLines(), 1)
		})
	}
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestHandleCreate_DuplicateEmail(t *testing.T) {
	api := newTestAPI(t)
	api.createUser(t, "johndoe", "New York", 25)

	rr := api.do(t, http.MethodPost, "/api/users",
		`{"username":"janedoe","email":"johndoe@example.com","age":30,"city":"Boston"}`)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"User with this email already exists"}`, rr.Body.String())
}

// =========================================================================
// GET / LIST
// =========================================================================

func TestHandleGetByID(t *testing.T) {
	api := newTestAPI(t)
	created := api.createUser(t, "johndoe", "New York", 25)

	rr := api.do(t, http.MethodGet, "/api/users/"+created.ID, "")

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, created.ID, data["id"])
	assert.Equal(t, "johndoe", data["username"])
}

func TestHandleGetByID_NotFound(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/api/users/does-not-exist", "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"User not found"}`, rr.Body.String())

	lines := api.failureLines()
	require.Len(t, lines, 1)
	assert.EqualValues(t, 404, lines[0]["status"])
	assert.Equal(t, "/api/users/does-not-exist", lines[0]["path"])
	assert.Equal(t, false, lines[0]["auth"])
}

func TestHandleList(t *testing.T) {
	api := newTestAPI(t)
	for _, name := range []string{"alice", "bob", "carol"} {
		api.createUser(t, name, "Oslo", 30)
	}

	rr := api.do(t, http.MethodGet, "/api/users?page=2&size=2&sortBy=username&order=asc", "")

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 2, body["page"])
	assert.EqualValues(t, 2, body["size"])
	users := body["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "carol", users[0].(map[string]any)["username"])
}

func TestHandleList_BadParamsUseDefaults(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/api/users?page=zero&size=-4&sortBy=password&order=sideways", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"total":0,"page":1,"size":10,"users":[]}`, rr.Body.String())
}

func TestHandleList_PageBeyondEveryRecord(t *testing.T) {
	api := newTestAPI(t)
	api.createUser(t, "johndoe", "New York", 25)

	rr := api.do(t, http.MethodGet, "/api/users?page=9223372036854775807&size=10", "")

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode(t, rr)
	assert.EqualValues(t, 1, body["total"])
	assert.Empty(t, body["users"])
	assert.Empty(t, api.failureLines())
}

// =========================================================================
// UPDATE / DELETE
// =========================================================================

func TestHandleUpdate(t *testing.T) {
	api := newTestAPI(t)
	created := api.createUser(t, "johndoe", "New York", 25)

	rr := api.do(t, http.MethodPut, "/api/users/"+created.ID, `{"city":"Boston"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	data := decode(t, rr)["data"].(map[string]any)
	assert.Equal(t, "Boston", data["city"])
	assert.Equal(t, "johndoe", data["username"])
	assert.EqualValues(t, 25, data["age"])
}

func TestHandleUpdate_EmptyBody(t *testing.T) {
	api := newTestAPI(t)
	created := api.createUser(t, "johndoe", "New York", 25)

	rr := api.do(t, http.MethodPut, "/api/users/"+created.ID, `{}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t,
		`{"success":false,"error":"Validation Error: `+validation.MsgUpdateNeedsField+`"}`,
		rr.Body.String())
}

func TestHandleUpdate_AgeBeyondSafeIntegerRange(t *testing.T) {
	api := newTestAPI(t)
	created := api.createUser(t, "johndoe", "New York", 25)

	rr := api.do(t, http.MethodPut, "/api/users/"+created.ID, `{"age":1e20}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"Validation Error: \"age\" must be a safe number"}`, rr.Body.String())
}

func TestHandleUpdate_NotFound(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPut, "/api/users/does-not-exist", `{"age":40}`)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleDelete(t *testing.T) {
	api := newTestAPI(t)
	created := api.createUser(t, "johndoe", "New York", 25)

	rr := api.do(t, http.MethodDelete, "/api/users/"+created.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"message":"User deleted successfully"}`, rr.Body.String())

	rr = api.do(t, http.MethodGet, "/api/users/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(t, http.MethodDelete, "/api/users/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// =========================================================================
// AGGREGATE
// =========================================================================

func seedCities(t *testing.T, api *testAPI) {
	t.Helper()
	api.createUser(t, "ann", "NY", 20)
	api.createUser(t, "bob", "NY", 30)
	api.createUser(t, "cat", "LA", 25)
}

func TestHandleAggregate_ByCity(t *testing.T) {
	api := newTestAPI(t)
	seedCities(t, api)

	rr := api.do(t, http.MethodGet, "/api/users/aggregate?city=true", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"data":[
		{"_id":"NY","totalUsers":2,"averageAge":25},
		{"_id":"LA","totalUsers":1,"averageAge":25}
	]}`, rr.Body.String())
}

func TestHandleAggregate_ByAge(t *testing.T) {
	api := newTestAPI(t)
	seedCities(t, api)

	rr := api.do(t, http.MethodGet, "/api/users/aggregate?age=TRUE", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"data":[
		{"_id":20,"totalUsers":1,"cities":["NY"]},
		{"_id":30,"totalUsers":1,"cities":["NY"]},
		{"_id":25,"totalUsers":1,"cities":["LA"]}
	]}`, rr.Body.String())
}

func TestHandleAggregate_BothFlagsChained(t *testing.T) {
	api := newTestAPI(t)
	seedCities(t, api)

	rr := api.do(t, http.MethodGet, "/api/users/aggregate?city=true&age=true", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"data":[{"_id":{},"totalUsers":1}]}`, rr.Body.String())
}

func TestHandleAggregate_EmptyCollection(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/api/users/aggregate?city=true", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, rr.Body.String())
}

func TestHandleAggregate_NoGroupIsRejected(t *testing.T) {
	for _, target := range []string{
		"/api/users/aggregate",
		"/api/users/aggregate?city=false&age=false",
	} {
		t.Run(target, func(t *testing.T) {
			api := newTestAPI(t)

			rr := api.do(t, http.MethodGet, target, "")

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.JSONEq(t,
				`{"success":false,"error":"Validation Error: `+validation.MsgAggregateNeedsGroup+`"}`,
				rr.Body.String())
		})
	}
}

func TestHandleAggregate_NotABoolean(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/api/users/aggregate?city=yes", "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `\"city\" must be a boolean`)
}
