package supervisor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVerifyUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/internal/api/verify_user/alice":
			w.Write([]byte(`{"valid": true}`))
		case "/internal/api/verify_user/mallory":
			w.Write([]byte(`{"valid": false}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	if !c.VerifyUser(ctx, "alice") {
		t.Fatal("alice should verify")
	}
	if c.VerifyUser(ctx, "mallory") {
		t.Fatal("mallory should not verify")
	}
	if c.VerifyUser(ctx, "unknown") {
		t.Fatal("404 should mean not verified")
	}
}

func TestVerifyUserUnreachableSupervisor(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	if c.VerifyUser(context.Background(), "alice") {
		t.Fatal("unreachable supervisor should mean not verified")
	}
}

func TestAnnounce(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	NewClient(srv.URL).Announce(context.Background(), "agent-1", "Sleep Optimizer Agent", "1.0.0", 8000)

	select {
	case path := <-got:
		if path != "/internal/api/agents/announce" {
			t.Fatalf("path = %s", path)
		}
	default:
		t.Fatal("announce request never arrived")
	}
}
