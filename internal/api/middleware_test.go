package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestSafeHeadersRedactsCredentials(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer secret")
	r.Header.Set("X-Internal-Token", "shared")
	r.Header.Set("User-Agent", "test")

	got := SafeHeaders(r)
	if got["Authorization"] != "<redacted>" || got["X-Internal-Token"] != "<redacted>" {
		t.Fatalf("headers = %v, want credentials redacted", got)
	}
	if got["User-Agent"] != "test" {
		t.Fatalf("User-Agent = %q, want %q", got["User-Agent"], "test")
	}
}

func TestSafeQueryRedactsToken(t *testing.T) {
	u, _ := url.Parse("/ws/chat?token=abc&x=1")
	got := SafeQuery(u)
	if strings.Contains(got, "abc") {
		t.Fatalf("query = %q leaks the token", got)
	}
	if !strings.Contains(got, "x=1") {
		t.Fatalf("query = %q, want x=1 kept", got)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimitMiddleware(2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}
	want := []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}
}

func TestLoggerRecordsStatus(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/chat?token=abc", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}
