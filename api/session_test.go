package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"weekplan-api/domain"
	"weekplan-api/storage"
)

var testSecret = []byte("test-session-secret")

func newAuthContext(t *testing.T, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func registerTestUser(t *testing.T, store *storage.Memory) sessionResponse {
	t.Helper()
	sessions := NewSessions(testSecret, time.Hour, "weekplan")
	c, rec := newAuthContext(t, "/api/auth/register", `{"email":"person@example.com","password":"hunter2hunter2"}`)
	if err := registerUser(store, sessions)(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp sessionResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return resp
}

func TestRegisterIssuesVerifiableToken(t *testing.T) {
	store := storage.NewMemory()
	resp := registerTestUser(t, store)
	if resp.Token == "" || resp.UserID == "" {
		t.Fatalf("unexpected response: %#v", resp)
	}

	auth := NewSessionAuth(testSecret, "weekplan")
	sub, err := auth.UserIDFromAuthHeader("Bearer " + resp.Token)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if sub != resp.UserID {
		t.Fatalf("token sub %q does not match user id %q", sub, resp.UserID)
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	store := storage.NewMemory()
	registerTestUser(t, store)

	sessions := NewSessions(testSecret, time.Hour, "weekplan")
	c, rec := newAuthContext(t, "/api/auth/register", `{"email":"Person@Example.com","password":"hunter2hunter2"}`)
	if err := registerUser(store, sessions)(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d", rec.Code)
	}
}

func TestRegisterRejectsWeakInput(t *testing.T) {
	store := storage.NewMemory()
	sessions := NewSessions(testSecret, time.Hour, "weekplan")

	bodies := map[string]string{
		"bad email":      `{"email":"not-an-email","password":"hunter2hunter2"}`,
		"short password": `{"email":"person@example.com","password":"short"}`,
		"missing email":  `{"password":"hunter2hunter2"}`,
		"not json":       `nope`,
	}
	for name, body := range bodies {
		c, rec := newAuthContext(t, "/api/auth/register", body)
		if err := registerUser(store, sessions)(c); err != nil {
			t.Fatalf("%s: register: %v", name, err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400 got %d", name, rec.Code)
		}
	}
}

func TestLoginSuccess(t *testing.T) {
	store := storage.NewMemory()
	reg := registerTestUser(t, store)

	sessions := NewSessions(testSecret, time.Hour, "weekplan")
	c, rec := newAuthContext(t, "/api/auth/login", `{"email":"person@example.com","password":"hunter2hunter2"}`)
	if err := loginUser(store, sessions)(c); err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp sessionResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.UserID != reg.UserID {
		t.Fatalf("expected same user id, got %q and %q", resp.UserID, reg.UserID)
	}
}

type brokenUserStore struct {
	Storage
}

func (brokenUserStore) UserByEmail(context.Context, string) (domain.User, error) {
	return domain.User{}, errors.New("table service unavailable")
}

func TestLoginBackendFailureIsNotUnauthorized(t *testing.T) {
	sessions := NewSessions(testSecret, time.Hour, "weekplan")
	c, rec := newAuthContext(t, "/api/auth/login", `{"email":"person@example.com","password":"hunter2hunter2"}`)
	if err := loginUser(brokenUserStore{}, sessions)(c); err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 for backend failure, got %d", rec.Code)
	}
}

func TestLoginFailureIsOpaque(t *testing.T) {
	store := storage.NewMemory()
	registerTestUser(t, store)

	sessions := NewSessions(testSecret, time.Hour, "weekplan")
	bodies := map[string]string{
		"wrong password": `{"email":"person@example.com","password":"wrong-password"}`,
		"unknown email":  `{"email":"nobody@example.com","password":"hunter2hunter2"}`,
	}
	for name, body := range bodies {
		c, rec := newAuthContext(t, "/api/auth/login", body)
		if err := loginUser(store, sessions)(c); err != nil {
			t.Fatalf("%s: login: %v", name, err)
		}
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected status 401 got %d", name, rec.Code)
		}
		var resp errorResponse
		if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: invalid json: %v", name, err)
		}
		if resp.Error != "invalid credentials" {
			t.Fatalf("%s: expected opaque error, got %q", name, resp.Error)
		}
	}
}
