package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestGetFetchesAndCachesToken(t *testing.T) {
	var requests int32
	realm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if got := r.URL.Query().Get("scope"); got != "repository:alpine:pull" {
			t.Errorf("scope = %q, want repository:alpine:pull", got)
		}
		fmt.Fprintln(w, `{"token":"abc123","expires_in":300}`)
	}))
	defer realm.Close()

	src := New(Config{Realm: realm.URL, Service: "distribd"}, nil)

	tok, err := src.Get(context.Background(), "alpine")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tok != "abc123" {
		t.Errorf("token = %q, want abc123", tok)
	}

	if _, err := src.Get(context.Background(), "alpine"); err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("realm received %d requests, want 1 (second call should hit cache)", n)
	}
}

func TestGetWithoutRealmReturnsEmptyToken(t *testing.T) {
	src := New(Config{}, nil)
	tok, err := src.Get(context.Background(), "alpine")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tok != "" {
		t.Errorf("token = %q, want empty", tok)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	var requests int32
	realm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		fmt.Fprintf(w, `{"token":"token-%d","expires_in":300}`, n)
	}))
	defer realm.Close()

	src := New(Config{Realm: realm.URL, Service: "distribd"}, nil)

	first, _ := src.Get(context.Background(), "alpine")
	src.Invalidate("alpine")
	second, _ := src.Get(context.Background(), "alpine")

	if first == second {
		t.Error("Invalidate() did not force a new token to be fetched")
	}
}

func TestGetSurfacesNonOKStatus(t *testing.T) {
	realm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer realm.Close()

	src := New(Config{Realm: realm.URL, Service: "distribd"}, nil)
	_, err := src.Get(context.Background(), "alpine")
	if err == nil {
		t.Fatal("Get() error = nil, want error on 401")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %v, want it to mention status 401", err)
	}
}
