package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthCheckDecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthCheckResponse{Status: "ok", Version: "1.0"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	out, err := c.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if out.Status != "ok" || out.Version != "1.0" {
		t.Errorf("unexpected response: %+v", out)
	}
}

func TestPullSendsSessionHeaderAndQuery(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("last_sync_ts")
		json.NewEncoder(w).Encode(PullResponse{})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetSession("tok-abc")
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if _, err := c.Pull(context.Background(), ts); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if gotAuth != "Token tok-abc" {
		t.Errorf("expected bearer-style auth header, got %q", gotAuth)
	}
	if gotQuery == "" {
		t.Error("expected last_sync_ts query parameter")
	}
}

func TestPushConflictSurfacesAsConflictKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetSession("tok")
	err := c.Push(context.Background(), nil, time.Now())
	if err == nil {
		t.Fatal("expected an error on 409")
	}
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if rerr.Kind != Conflict {
		t.Errorf("expected Conflict kind, got %v", rerr.Kind)
	}
}

func TestLoginInstallsSessionOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "alice" || req.Password != "secret" {
			t.Errorf("unexpected login request: %+v", req)
		}
		json.NewEncoder(w).Encode(sessionResponse{Session: "new-session"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	session, err := c.Login(context.Background(), "alice", "secret", "alice@laptop")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session != "new-session" {
		t.Errorf("expected returned session new-session, got %q", session)
	}

	var gotAuth string
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(StatusResponse{})
	}))
	defer srv2.Close()
	c.baseURL = srv2.URL
	if _, err := c.Status(context.Background()); err != nil {
		t.Fatalf("status: %v", err)
	}
	if gotAuth != "Token new-session" {
		t.Errorf("expected login to install session for later calls, got auth %q", gotAuth)
	}
}

func TestUnauthorizedSurfacesAsUnauthorizedKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetSession("stale")
	_, err := c.Status(context.Background())
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Kind != Unauthorized {
		t.Fatalf("expected Unauthorized kind, got %v", err)
	}
}

func TestTransportErrorWhenServerUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1")
	_, err := c.HealthCheck(context.Background())
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Kind != Transport {
		t.Fatalf("expected Transport kind, got %v", err)
	}
}
