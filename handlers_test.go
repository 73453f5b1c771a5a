package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	tokens := NewTokenIssuer("access-secret", "refresh-secret", 3*time.Minute, 24*time.Hour)
	return NewApp(NewMemoryStore(), tokens, log)
}

func doRequest(t *testing.T, r *mux.Router, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

type authEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		UserID string `json:"userId"`
		Email  string `json:"email"`
		Token  string `json:"token"`
	} `json:"data"`
}

func signup(t *testing.T, r *mux.Router, name, email, password string, age int) (*httptest.ResponseRecorder, authEnvelope) {
	t.Helper()
	w := doRequest(t, r, "POST", "/auth/signup", map[string]interface{}{
		"name": name, "email": email, "password": password, "age": age,
	})
	var env authEnvelope
	if w.Code == http.StatusCreated {
		decodeBody(t, w, &env)
	}
	return w, env
}

func TestSignupThenLogin(t *testing.T) {
	app := newTestApp(t)
	r := app.Router(false)

	w, env := signup(t, r, "A", "a@x.com", "s3cret", 20)
	require.Equal(t, http.StatusCreated, w.Code)
	require.True(t, env.Success)
	require.NotEmpty(t, env.Data.UserID)
	require.Equal(t, "a@x.com", env.Data.Email)
	require.NotEmpty(t, env.Data.Token)

	// signup does not set a refresh cookie
	require.Empty(t, w.Result().Cookies())

	lw := doRequest(t, r, "POST", "/auth/login", map[string]string{
		"email": "a@x.com", "password": "s3cret",
	})
	require.Equal(t, http.StatusOK, lw.Code)

	var lenv authEnvelope
	decodeBody(t, lw, &lenv)
	require.Equal(t, env.Data.UserID, lenv.Data.UserID)
	require.NotEmpty(t, lenv.Data.Token)

	cookies := lw.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	require.Equal(t, refreshCookieName, c.Name)
	require.True(t, c.HttpOnly)
	require.True(t, c.Secure)
	require.Equal(t, http.SameSiteNoneMode, c.SameSite)
	require.Equal(t, int((24 * time.Hour).Seconds()), c.MaxAge)

	// the cookie holds a valid refresh token for this user
	claims, err := app.Tokens.VerifyRefreshToken(c.Value)
	require.NoError(t, err)
	require.Equal(t, env.Data.UserID, claims.UserID)
}

func TestSignupConflict(t *testing.T) {
	app := newTestApp(t)
	r := app.Router(false)

	w, _ := signup(t, r, "A", "a@x.com", "s3cret", 20)
	require.Equal(t, http.StatusCreated, w.Code)

	w2, _ := signup(t, r, "B", "a@x.com", "other", 30)
	require.Equal(t, http.StatusConflict, w2.Code)

	lw := doRequest(t, r, "GET", "/users", nil)
	var users []User
	decodeBody(t, lw, &users)
	require.Len(t, users, 1)
}

func TestSignupValidation(t *testing.T) {
	app := newTestApp(t)
	r := app.Router(false)

	w := doRequest(t, r, "POST", "/auth/signup", map[string]interface{}{
		"email": "a@x.com", "password": "s3cret",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, r, "POST", "/auth/signup", map[string]interface{}{
		"name": "A", "email": "not-an-email", "password": "s3cret", "age": 20,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	app := newTestApp(t)
	r := app.Router(false)

	w, _ := signup(t, r, "A", "a@x.com", "s3cret", 20)
	require.Equal(t, http.StatusCreated, w.Code)

	wrong := doRequest(t, r, "POST", "/auth/login", map[string]string{
		"email": "a@x.com", "password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, wrong.Code)

	unknown := doRequest(t, r, "POST", "/auth/login", map[string]string{
		"email": "nobody@x.com", "password": "s3cret",
	})
	require.Equal(t, http.StatusUnauthorized, unknown.Code)

	// unknown email and wrong password are indistinguishable
	require.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestRefresh(t *testing.T) {
	app := newTestApp(t)
	r := app.Router(false)

	w, env := signup(t, r, "A", "a@x.com", "s3cret", 20)
	require.Equal(t, http.StatusCreated, w.Code)

	lw := doRequest(t, r, "POST", "/auth/login", map[string]string{
		"email": "a@x.com", "password": "s3cret",
	})
	require.Equal(t, http.StatusOK, lw.Code)
	cookie := lw.Result().Cookies()[0]

	// no cookie
	rw := doRequest(t, r, "POST", "/auth/refresh", nil)
	require.Equal(t, http.StatusNotAcceptable, rw.Code)

	// tampered cookie
	bad := *cookie
	bad.Value = bad.Value[:len(bad.Value)-2] + "xx"
	rw = doRequest(t, r, "POST", "/auth/refresh", nil, &bad)
	require.Equal(t, http.StatusNotAcceptable, rw.Code)

	// expired refresh token
	expired := NewTokenIssuer("access-secret", "refresh-secret", time.Minute, -time.Minute)
	expiredTok, err := expired.IssueRefreshToken(env.Data.UserID, "a@x.com")
	require.NoError(t, err)
	rw = doRequest(t, r, "POST", "/auth/refresh", nil, &http.Cookie{Name: refreshCookieName, Value: expiredTok})
	require.Equal(t, http.StatusNotAcceptable, rw.Code)

	// valid cookie mints a new access token for the same identity
	rw = doRequest(t, r, "POST", "/auth/refresh", nil, cookie)
	require.Equal(t, http.StatusOK, rw.Code)
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	decodeBody(t, rw, &out)
	claims, err := app.Tokens.VerifyAccessToken(out.AccessToken)
	require.NoError(t, err)
	require.Equal(t, env.Data.UserID, claims.UserID)
	require.Equal(t, "a@x.com", claims.Email)
}

func TestCreateThenGetUser(t *testing.T) {
	app := newTestApp(t)
	r := app.Router(false)

	w := doRequest(t, r, "POST", "/users", map[string]interface{}{
		"name": "A", "email": "a@x.com", "age": 20,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created User
	decodeBody(t, w, &created)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "A", created.Name)
	require.Equal(t, "a@x.com", created.Email)
	require.Equal(t, 20, created.Age)

	gw := doRequest(t, r, "GET", "/users/"+created.ID, nil)
	require.Equal(t, http.StatusOK, gw.Code)
	var got User
	decodeBody(t, gw, &got)
	require.Equal(t, created, got)
}

func TestCreateUserValidation(t *testing.T) {
	app := newTestApp(t)
	r := app.Router(false)

	w := doRequest(t, r, "POST", "/users", map[string]interface{}{
		"email": "a@x.com", "age": 20,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// duplicate email is a client error, not a server fault
	w = doRequest(t, r, "POST", "/users", map[string]interface{}{
		"name": "A", "email": "a@x.com", "age": 20,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = doRequest(t, r, "POST", "/users", map[string]interface{}{
		"name": "B", "email": "a@x.com", "age": 30,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUserNotFound(t *testing.T) {
	app := newTestApp(t)
	r := app.Router(false)

	w := doRequest(t, r, "GET", "/users/no-such-id", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var apiErr APIError
	decodeBody(t, w, &apiErr)
	require.Equal(t, "User not found", apiErr.Message)
}

func TestReplaceUser(t *testing.T) {
	app := newTestApp(t)
	r := app.Router(false)

	w := doRequest(t, r, "POST", "/users", map[string]interface{}{
		"name": "A", "email": "a@x.com", "age": 20,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created User
	decodeBody(t, w, &created)

	// a replace missing a field is rejected, not applied as a zero overwrite
	pw := doRequest(t, r, "PUT", "/users/"+created.ID, map[string]interface{}{
		"name": "B", "age": 31,
	})
	require.Equal(t, http.StatusBadRequest, pw.Code)

	pw = doRequest(t, r, "PUT", "/users/"+created.ID, map[string]interface{}{
		"name": "B", "email": "b@x.com", "age": 31,
	})
	require.Equal(t, http.StatusOK, pw.Code)

	gw := doRequest(t, r, "GET", "/users/"+created.ID, nil)
	var got User
	decodeBody(t, gw, &got)
	require.Equal(t, "B", got.Name)
	require.Equal(t, "b@x.com", got.Email)
	require.Equal(t, 31, got.Age)
}

func TestPatchUserOnlyTouchesGivenFields(t *testing.T) {
	app := newTestApp(t)
	r := app.Router(false)

	w := doRequest(t, r, "POST", "/users", map[string]interface{}{
		"name": "A", "email": "a@x.com", "age": 20,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created User
	decodeBody(t, w, &created)

	pw := doRequest(t, r, "PATCH", "/users/"+created.ID, map[string]interface{}{"age": 31})
	require.Equal(t, http.StatusOK, pw.Code)

	gw := doRequest(t, r, "GET", "/users/"+created.ID, nil)
	var got User
	decodeBody(t, gw, &got)
	require.Equal(t, 31, got.Age)
	require.Equal(t, "A", got.Name)
	require.Equal(t, "a@x.com", got.Email)
}

func TestZeroAgeAccepted(t *testing.T) {
	app := newTestApp(t)
	r := app.Router(false)

	// zero is a valid age; only an absent field fails validation
	w := doRequest(t, r, "POST", "/users", map[string]interface{}{
		"name": "Baby", "email": "baby@x.com", "age": 0,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created User
	decodeBody(t, w, &created)
	require.Equal(t, 0, created.Age)

	w = doRequest(t, r, "POST", "/users", map[string]interface{}{
		"name": "NoAge", "email": "noage@x.com",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	pw := doRequest(t, r, "PUT", "/users/"+created.ID, map[string]interface{}{
		"name": "Baby", "email": "baby@x.com", "age": 0,
	})
	require.Equal(t, http.StatusOK, pw.Code)

	sw, env := signup(t, r, "Newborn", "newborn@x.com", "s3cret", 0)
	require.Equal(t, http.StatusCreated, sw.Code)
	require.NotEmpty(t, env.Data.UserID)
}

func TestReplaceAndPatchMissingUserAnswerOK(t *testing.T) {
	app := newTestApp(t)
	r := app.Router(false)

	// like delete, replace and patch of a missing id still confirm
	pw := doRequest(t, r, "PUT", "/users/no-such-id", map[string]interface{}{
		"name": "B", "email": "b@x.com", "age": 31,
	})
	require.Equal(t, http.StatusOK, pw.Code)
	var msg APIError
	decodeBody(t, pw, &msg)
	require.Equal(t, "User has been updated", msg.Message)

	pw = doRequest(t, r, "PATCH", "/users/no-such-id", map[string]interface{}{"age": 31})
	require.Equal(t, http.StatusOK, pw.Code)
	decodeBody(t, pw, &msg)
	require.Equal(t, "User has been updated", msg.Message)

	// nothing was created along the way
	lw := doRequest(t, r, "GET", "/users", nil)
	require.JSONEq(t, "[]", lw.Body.String())
}

func TestDeleteUserQuirk(t *testing.T) {
	app := newTestApp(t)
	r := app.Router(false)

	w := doRequest(t, r, "POST", "/users", map[string]interface{}{
		"name": "A", "email": "a@x.com", "age": 20,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created User
	decodeBody(t, w, &created)

	dw := doRequest(t, r, "DELETE", "/users/"+created.ID, nil)
	require.Equal(t, http.StatusOK, dw.Code)

	// deleting an id that no longer exists answers with the same shape
	dw2 := doRequest(t, r, "DELETE", "/users/"+created.ID, nil)
	require.Equal(t, http.StatusOK, dw2.Code)
	require.Equal(t, dw.Body.String(), dw2.Body.String())

	gw := doRequest(t, r, "GET", "/users/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, gw.Code)
}

func TestListUsersEmpty(t *testing.T) {
	app := newTestApp(t)
	r := app.Router(false)

	w := doRequest(t, r, "GET", "/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, "[]", w.Body.String())
}

func TestProtectedUserRoutes(t *testing.T) {
	app := newTestApp(t)
	r := app.Router(true)

	w := doRequest(t, r, "GET", "/users", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// auth routes stay open
	sw, env := signup(t, r, "A", "a@x.com", "s3cret", 20)
	require.Equal(t, http.StatusCreated, sw.Code)

	req := httptest.NewRequest("GET", "/users", nil)
	req.Header.Set("Authorization", "Bearer "+env.Data.Token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest("GET", "/users", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	app := newTestApp(t)
	r := app.Router(false)

	w := doRequest(t, r, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, r, "GET", "/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
