package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/guetzli/shield"
)

// TestShield_Wiring exercises the same middleware stack construction as
// main()'s router (shield.DefaultStack() applied via r.Use) to verify
// security headers, trace ID injection and HEAD->GET translation actually
// fire through a real chi router, not just in shield's own unit tests.
func TestShield_Wiring(t *testing.T) {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	checks := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, want := range checks {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s: got %q, want %q", header, got, want)
		}
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy header missing")
	}

	traceID := w.Header().Get("X-Trace-ID")
	if len(traceID) != 8 {
		t.Errorf("X-Trace-ID: got %q (len %d), want 8 hex chars", traceID, len(traceID))
	}
}

func TestShield_Wiring_HeadToGet(t *testing.T) {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Handler-Hit", "yes")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodHead, "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("HEAD /test: got status %d, want %d (HeadToGet should route it to the GET handler)", w.Code, http.StatusOK)
	}
	if w.Header().Get("X-Handler-Hit") != "yes" {
		t.Error("HEAD /test did not reach the GET handler")
	}
}
