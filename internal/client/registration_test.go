package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegister_Success(t *testing.T) {
	var gotBody registrationRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/nodes/register" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{
			"node_name": "node01",
			"node_token": "issued-token",
			"nats": {"servers": "nats://10.0.0.1:4222", "nkey_seed": "SUAAAA"}
		}`)
	}))
	defer srv.Close()

	result, err := Register(context.Background(), srv.URL, "bootstrap-1", "node01.cluster", testLogger())
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if gotBody.BootstrapToken != "bootstrap-1" || gotBody.Hostname != "node01.cluster" {
		t.Errorf("unexpected request body: %+v", gotBody)
	}
	if result.NodeName != "node01" || result.NodeToken != "issued-token" {
		t.Errorf("unexpected credentials: %+v", result)
	}
	if result.NATSServers != "nats://10.0.0.1:4222" || result.NATSNKeySeed != "SUAAAA" {
		t.Errorf("NATS credentials not extracted: %+v", result)
	}
}

func TestRegister_WithoutNATS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"node_name": "node01", "node_token": "issued-token"}`)
	}))
	defer srv.Close()

	result, err := Register(context.Background(), srv.URL, "bootstrap-1", "node01", testLogger())
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if result.NATSServers != "" || result.NATSNKeySeed != "" {
		t.Errorf("expected empty NATS credentials, got %+v", result)
	}
}

func TestRegister_InvalidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Register(context.Background(), srv.URL, "used-token", "node01", testLogger())
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRegister_BadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error": "hostname missing"}`)
	}))
	defer srv.Close()

	_, err := Register(context.Background(), srv.URL, "bootstrap-1", "", testLogger())
	if !errors.Is(err, ErrBadRequest) {
		t.Errorf("expected ErrBadRequest, got %v", err)
	}
}
