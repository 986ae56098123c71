package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/daybook/internal/cli/credentials"
)

type memoryStore struct {
	mu    sync.Mutex
	creds *credentials.Credentials
}

func (m *memoryStore) Load() (*credentials.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return nil, nil
	}
	c := *m.creds
	return &c, nil
}

func (m *memoryStore) Save(c *credentials.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := *c
	m.creds = &saved
	return nil
}

func (m *memoryStore) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
	return nil
}

func writeEnvelope(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   map[string]string{"code": code, "message": msg},
	})
}

func authResult(access, refresh string) map[string]interface{} {
	return map[string]interface{}{
		"user": map[string]interface{}{"id": "u1", "email": "alice@example.com", "username": "alice", "timezone": "UTC"},
		"tokens": map[string]interface{}{
			"access_token":       access,
			"refresh_token":      refresh,
			"token_type":         "Bearer",
			"expires_at":         time.Now().Add(time.Minute),
			"refresh_expires_at": time.Now().Add(time.Hour),
		},
	}
}

func TestLoginStoresTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/login", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret123" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid email or password")
			return
		}
		writeEnvelope(w, http.StatusOK, authResult("access-1", "refresh-1"))
	}))
	defer srv.Close()

	store := &memoryStore{}
	cl := New(srv.URL, 5*time.Second, store)

	_, err := cl.Login(context.Background(), "alice@example.com", "wrong", "")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
	assert.Nil(t, store.creds)

	result, err := cl.Login(context.Background(), "alice@example.com", "secret123", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", result.User.Username)
	require.NotNil(t, store.creds)
	assert.Equal(t, "access-1", store.creds.AccessToken)
	assert.Equal(t, "refresh-1", store.creds.RefreshToken)
	assert.Equal(t, "UTC", store.creds.Timezone)
}

func TestRequiresLogin(t *testing.T) {
	cl := New("http://127.0.0.1:1", time.Second, &memoryStore{})
	_, err := cl.Me(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestRefreshesOnceOn401(t *testing.T) {
	var refreshes, listCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/refresh":
			refreshes++
			writeEnvelope(w, http.StatusOK, authResult("access-2", "refresh-2"))
		case "/api/v1/progress-items":
			listCalls++
			if r.Header.Get("Authorization") != "Bearer access-2" {
				writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "token expired")
				return
			}
			assert.Equal(t, "do", r.URL.Query().Get("quadrant"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":true,"data":[{"id":"11111111-2222-3333-4444-555555555555","title":"Ship","quadrant":"do","status":"todo"}],"meta":{"limit":50,"offset":0,"count":1,"total":1,"has_more":false}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := &memoryStore{creds: &credentials.Credentials{
		AccessToken:      "access-1",
		RefreshToken:     "refresh-1",
		RefreshExpiresAt: time.Now().Add(time.Hour),
	}}
	cl := New(srv.URL, 5*time.Second, store)

	items, meta, err := cl.ListItems(context.Background(), ItemFilter{Quadrant: "do"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Ship", items[0].Title)
	assert.EqualValues(t, 1, meta.Total)
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 2, listCalls)
	assert.Equal(t, "access-2", store.creds.AccessToken)
	assert.Equal(t, "refresh-2", store.creds.RefreshToken)
}

func TestRejectedRefreshSignsOut(t *testing.T) {
	var refreshes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/auth/refresh" {
			refreshes++
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "refresh token revoked")
			return
		}
		writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "token expired")
	}))
	defer srv.Close()

	store := &memoryStore{creds: &credentials.Credentials{AccessToken: "a", RefreshToken: "r"}}
	cl := New(srv.URL, 5*time.Second, store)

	_, err := cl.Dashboard(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 1, refreshes)
	assert.Nil(t, store.creds)
}

func TestNoRefreshWithoutRefreshToken(t *testing.T) {
	var refreshes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/auth/refresh" {
			refreshes++
		}
		writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "token expired")
	}))
	defer srv.Close()

	store := &memoryStore{creds: &credentials.Credentials{AccessToken: "a"}}
	_, err := New(srv.URL, 5*time.Second, store).Me(context.Background())
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Zero(t, refreshes)
}

func TestCheckInAndValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["date"] == "2026-10-19" {
			writeEnvelope(w, http.StatusCreated, map[string]string{"id": "l1", "commitment_id": "c1", "date": body["date"]})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"ALREADY_EXISTS","message":"already checked in","field":"date"}}`))
	}))
	defer srv.Close()

	cl := New(srv.URL, 5*time.Second, &memoryStore{creds: &credentials.Credentials{AccessToken: "a"}})

	log, err := cl.CheckIn(context.Background(), "c1", "2026-10-19", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", log.Date)

	_, err = cl.CheckIn(context.Background(), "c1", "2026-10-18", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "date", apiErr.Field)
	assert.Contains(t, apiErr.Error(), "ALREADY_EXISTS")
}

func TestLogoutForgetsTokensEvenWhenServerFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "boom")
	}))
	defer srv.Close()

	store := &memoryStore{creds: &credentials.Credentials{AccessToken: "a", RefreshToken: "r", Email: "alice@example.com"}}
	creds, err := New(srv.URL, 5*time.Second, store).Logout(context.Background())
	assert.Error(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "alice@example.com", creds.Email)
	assert.Nil(t, store.creds)
}
