package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func tokenServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token%d","token_type":"bearer","expires_in":3600}`, n)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestGetTokenAndSetAuthHeader(t *testing.T) {
	server, calls := tokenServer(t)
	client := NewClientCred(Conf{ClientID: "id", ClientSecret: "secret", AuthURL: server.URL})

	token, err := client.GetToken(context.Background())
	if err != nil {
		t.Fatalf("GetToken returned error: %v", err)
	}
	if token != "token1" {
		t.Fatalf("unexpected token %s", token)
	}

	req, _ := http.NewRequest("GET", "http://example.com", nil)
	if err := client.SetAuthHeader(req); err != nil {
		t.Fatalf("SetAuthHeader returned error: %v", err)
	}
	if auth := req.Header.Get("Authorization"); auth != "Bearer token1" {
		t.Fatalf("unexpected Authorization header %q", auth)
	}
	if calls.Load() != 1 {
		t.Fatalf("token fetched %d times, want cached", calls.Load())
	}
}

func TestForceRefresh(t *testing.T) {
	server, _ := tokenServer(t)
	client := NewClientCred(Conf{ClientID: "id", AuthURL: server.URL})
	if _, err := client.GetToken(context.Background()); err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	tok, err := client.ForceRefresh(context.Background())
	if err != nil || tok != "token2" {
		t.Fatalf("refresh got %q err %v", tok, err)
	}
}

func TestEnabled(t *testing.T) {
	if (Conf{}).Enabled() {
		t.Fatalf("empty conf should be disabled")
	}
	if !(Conf{ClientID: "a", AuthURL: "http://x"}).Enabled() {
		t.Fatalf("conf should be enabled")
	}
}
